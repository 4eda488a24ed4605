package config

// LoadFromEnv reads an optional env file into the process environment and
// then loads the configuration from it.
func LoadFromEnv() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return Load(FromEnviron())
}
