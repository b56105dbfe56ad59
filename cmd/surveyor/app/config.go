package app

import (
	"errors"
	"flag"
)

type Config struct {
	DBPath    string
	DeviceID  string
	ModelFile string
	List      bool
	Estimates int
}

func NewConfigFromCLI() (*Config, error) {
	var c Config
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.StringVar(&c.DeviceID, "device", "", "Device identifier")
	flag.StringVar(&c.ModelFile, "f", "", "Path to a heatmap or access point CSV file to import")
	flag.BoolVar(&c.List, "list", false, "List devices with a stored reference model")
	flag.IntVar(&c.Estimates, "estimates", 0, "Print the N most recent estimates of the device")
	flag.Parse()

	if err := c.Validate(); err != nil {
		flag.Usage()
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.Estimates < 0:
		return errors.New("estimates must not be negative")
	case !c.List && c.ModelFile == "" && c.Estimates == 0:
		return errors.New("nothing to do: use -f, -list or -estimates")
	case (c.ModelFile != "" || c.Estimates > 0) && c.DeviceID == "":
		return errors.New("device id is required")
	}
	return nil
}
