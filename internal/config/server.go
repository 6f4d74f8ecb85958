package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Server holds process-level options for the bridge and CLI.
type Server struct {
	Listen        string `split_words:"true" default:"127.0.0.1:8081"`
	Database      string `split_words:"true" default:"data/devstock.db"`
	Workspace     string `split_words:"true"`
	SettingsFile  string `split_words:"true" default:"devstock.yaml"`
	RequireAuth   bool   `split_words:"true" default:"false"`
	PruneSchedule string `split_words:"true" default:"@hourly"`
	Debug         bool   `split_words:"true" default:"false"`

	UnsplashBaseURL string `split_words:"true" default:"https://api.unsplash.com"`
	PexelsBaseURL   string `split_words:"true" default:"https://api.pexels.com/v1"`
	PixabayBaseURL  string `split_words:"true" default:"https://pixabay.com/api/"`

	S3Endpoint string `split_words:"true"`
	S3Region   string `split_words:"true" default:"us-east-1"`
	S3Key      string `split_words:"true"`
	S3Secret   string `split_words:"true"`
}

// S3Enabled reports whether enough is configured to build an S3 client.
func (c *Server) S3Enabled() bool {
	return c.S3Key != "" && c.S3Secret != ""
}

// LoadServer reads .env (if present) and DEVSTOCK_* variables.
func LoadServer() (*Server, error) {
	_ = godotenv.Load()
	var c Server
	err := envconfig.Process("devstock", &c)
	return &c, err
}
