package state

import (
	"path/filepath"
	"sync"

	cellular_config "github.com/gogotrans/geotrack/cellular/config"
	gps_config "github.com/gogotrans/geotrack/gps/config"
	modem_config "github.com/gogotrans/geotrack/hardware/modem/config"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	tele_config "github.com/gogotrans/geotrack/tele/config"
	uploader_config "github.com/gogotrans/geotrack/uploader/config"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

const DefaultConfigName = "geotrack.hcl"

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Modem    modem_config.Config    `hcl:"modem"`
	Cellular cellular_config.Config `hcl:"cellular"`
	Gps      gps_config.Config      `hcl:"gps"`
	Queue    struct {
		Capacity   int    `hcl:"capacity"`
		Path       string `hcl:"path"` // leveldb directory, default persist.root/queue
		Namespace  string `hcl:"namespace"`
		DeadLetter bool   `hcl:"dead_letter"`
	} `hcl:"queue"`
	Upload uploader_config.Config `hcl:"upload"`
	Tele   tele_config.Config     `hcl:"tele"`
	Status struct {
		Enabled bool   `hcl:"enable"`
		Listen  string `hcl:"listen"`
	} `hcl:"status"`
	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`
	PollMs   int  `hcl:"poll_ms"`
	LogDebug bool `hcl:"log_debug"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
