package main

import (
	"flag"
	"fmt"

	"github.com/zsiec/ltcgen/internal/config"
)

type options struct {
	configPath  string
	showVersion bool
	serve       bool
	streamRTP   bool
	overrides   overrides
}

type overrides struct {
	fps         string
	sampleRate  int
	start       string
	duration    float64
	dropFrame   bool
	currentTime bool
	output      string

	date         string
	timezone     string
	reel         int
	camera       string
	groups       [4]int
	binaryGroups int
	field1       int
}

func newFlagSet(opts *options, handling flag.ErrorHandling) *flag.FlagSet {
	fs := flag.NewFlagSet("ltcgen", handling)
	o := &opts.overrides

	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file (defaults and LTCGEN_* env when empty)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.serve, "serve", false, "Run the HTTP API")
	fs.BoolVar(&opts.streamRTP, "stream", false, "Stream LTC over RTP until interrupted")

	fs.StringVar(&o.fps, "fps", "", "Frame rate: 24, 25, 29.97, 30, 59.94 or 60")
	fs.IntVar(&o.sampleRate, "sample-rate", 0, "Sample rate in Hz")
	fs.StringVar(&o.start, "start", "", "Start timecode HH:MM:SS:FF")
	fs.Float64Var(&o.duration, "duration", 0, "Duration in seconds")
	fs.BoolVar(&o.dropFrame, "drop-frame", false, "Use drop-frame timecode (29.97 and 59.94 only)")
	fs.BoolVar(&o.currentTime, "current-time", false, "Start from the current wall-clock time")
	fs.StringVar(&o.output, "output", "", "Output WAV path")

	fs.StringVar(&o.date, "date", "", "User bits date YYYY-MM-DD")
	fs.StringVar(&o.timezone, "timezone", "", "User bits timezone UTC+HH or UTC-HH")
	fs.IntVar(&o.reel, "reel", 0, "User bits reel number 0-99")
	fs.StringVar(&o.camera, "camera", "", "User bits camera id, up to 4 characters")
	for i := range o.groups {
		fs.IntVar(&o.groups[i], fmt.Sprintf("user-group%d", i+1), 0, fmt.Sprintf("Raw user bits group %d (0-255)", i+1))
	}
	fs.IntVar(&o.binaryGroups, "binary-groups", 0, "Binary group flag mask 0-255")
	fs.IntVar(&o.field1, "user-bits-field1", 0, "Override of user bits field 1 (0-15)")

	return fs
}

func parseFlags(args []string, handling flag.ErrorHandling) (*flag.FlagSet, *options, error) {
	opts := &options{}
	fs := newFlagSet(opts, handling)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return fs, opts, nil
}

// applyOverrides copies the flags the user actually set over the loaded
// configuration and validates the result again. Raw group flags replace any
// configured date/timezone/reel/camera and the other way round; setting both
// kinds on the command line is a config error.
func applyOverrides(fs *flag.FlagSet, cfg *config.Config, o overrides) error {
	var groupsSet, semanticSet bool
	groups := [4]int{}
	if len(cfg.UserBits.Groups) == len(groups) {
		copy(groups[:], cfg.UserBits.Groups)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fps":
			cfg.Generator.FPS = o.fps
		case "sample-rate":
			cfg.Generator.SampleRate = o.sampleRate
		case "start":
			cfg.Timecode.Start = o.start
		case "duration":
			cfg.Timecode.Duration = o.duration
		case "drop-frame":
			cfg.Generator.DropFrame = o.dropFrame
		case "current-time":
			cfg.Timecode.CurrentTime = o.currentTime
		case "output":
			cfg.Output.Path = o.output
		case "date":
			cfg.UserBits.Date = o.date
			semanticSet = true
		case "timezone":
			cfg.UserBits.Timezone = o.timezone
			semanticSet = true
		case "reel":
			reel := o.reel
			cfg.UserBits.Reel = &reel
			semanticSet = true
		case "camera":
			cfg.UserBits.Camera = o.camera
			semanticSet = true
		case "user-group1", "user-group2", "user-group3", "user-group4":
			i := int(f.Name[len(f.Name)-1] - '1')
			groups[i] = o.groups[i]
			groupsSet = true
		case "binary-groups":
			cfg.UserBits.BinaryGroups = o.binaryGroups
		case "user-bits-field1":
			field1 := o.field1
			cfg.UserBits.Field1 = &field1
		}
	})

	switch {
	case groupsSet && semanticSet:
		cfg.UserBits.Groups = groups[:]
	case groupsSet:
		cfg.UserBits.Groups = groups[:]
		cfg.UserBits.Date, cfg.UserBits.Timezone, cfg.UserBits.Camera, cfg.UserBits.Reel = "", "", "", nil
	case semanticSet:
		cfg.UserBits.Groups = nil
	}

	return cfg.Validate()
}
