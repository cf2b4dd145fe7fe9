// Package config loads the small set of options the daemon recognises: listener ports, the SMTP
// banner name, and whether to advertise STARTTLS.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// Config holds every recognised option, each defaulted per §6.3 of the mail-sink interface.
type Config struct {
	SMTPPort          int    `json:"smtp_port"`
	HTTPPort          int    `json:"http_port"`
	BannerName        string `json:"banner_name"`
	AdvertiseSTARTTLS bool   `json:"advertise_starttls"`
}

// Default returns the configuration used when no config file or flag overrides it.
func Default() Config {
	return Config{
		SMTPPort:          1025,
		HTTPPort:          1080,
		BannerName:        "MailCatcher",
		AdvertiseSTARTTLS: false,
	}
}

// LoadFile reads a JSON document from path and overlays it on top of Default. Fields absent from
// the document keep their default value.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ParseFlags registers the command-line flags that mirror every Config field and parses args
// (typically os.Args[1:]) against base, returning the resulting Config. Each flag defaults to the
// corresponding value in base, so LoadFile's values survive when the flag is left unset; a flag
// that is given explicitly always overrides base, even with its zero value.
func ParseFlags(base Config, args []string) (Config, error) {
	fs := flag.NewFlagSet("catchmail", flag.ContinueOnError)
	smtpPort := fs.Int("smtp-port", base.SMTPPort, "port the SMTP receiver binds")
	httpPort := fs.Int("http-port", base.HTTPPort, "port the HTTP query surface binds")
	banner := fs.String("banner", base.BannerName, "server name used in SMTP greetings")
	starttls := fs.Bool("advertise-starttls", base.AdvertiseSTARTTLS, "advertise STARTTLS in EHLO responses")

	if err := fs.Parse(args); err != nil {
		return base, err
	}

	return Config{
		SMTPPort:          *smtpPort,
		HTTPPort:          *httpPort,
		BannerName:        *banner,
		AdvertiseSTARTTLS: *starttls,
	}, nil
}
