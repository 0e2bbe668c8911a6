package config

import "flag"

// Flags holds the command-line overrides shared by every command.
type Flags struct {
	fs *flag.FlagSet

	config        *string
	debug         *bool
	format        *string
	combine       *bool
	optimize      *bool
	ignoreWeights *bool
	logFile       *string
}

// BindFlags registers the global flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		fs:            fs,
		config:        fs.String("config", "", "Path to config file"),
		debug:         fs.Bool("debug", false, "Enable debug logging"),
		format:        fs.String("format", "", "Output attach format (buffer, basic, chunk, gc)"),
		combine:       fs.Bool("combine", false, "Combine weighted attaches at their dependency roots"),
		optimize:      fs.Bool("optimize", false, "Deduplicate vertices and corners"),
		ignoreWeights: fs.Bool("ignore-weights", false, "Write weighted attaches as rigid meshes"),
		logFile:       fs.String("log-file", "", "Write logs to a rotating file"),
	}
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.config
}

// apply copies every flag set on the command line over cfg. Boolean flags
// only override the file when given explicitly, so -optimize=false works.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}

	set := make(map[string]bool)
	f.fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if *f.debug {
		cfg.Logging.Level = "debug"
	}
	if *f.format != "" {
		cfg.Convert.Format = *f.format
	}
	if set["combine"] {
		cfg.Convert.CombineAtDependencyRoots = *f.combine
	}
	if set["optimize"] {
		cfg.Convert.Optimize = *f.optimize
	}
	if set["ignore-weights"] {
		cfg.Convert.IgnoreWeights = *f.ignoreWeights
	}
	if *f.logFile != "" {
		cfg.Logging.LogFile = *f.logFile
	}
}
