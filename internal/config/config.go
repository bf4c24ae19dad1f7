// Package config loads settings for the binaries. Values come from command
// line flags, then ROOMSYNC_* environment variables (optionally from a .env
// file), then defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const envPrefix = "ROOMSYNC"

// Default configuration values
const (
	defaultAddr           = ":8080"
	defaultBaseURL        = "http://localhost:8080"
	defaultWSURL          = "ws://localhost:8080/ws"
	defaultReconnectDelay = time.Second
	defaultLogLevel       = "info"
)

type Server struct {
	Addr     string
	Token    string // empty disables auth
	LogLevel string
	Dev      bool
}

type Watch struct {
	BaseURL           string
	WSURL             string
	Token             string
	Rooms             []string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration // 0 keeps the delay fixed
	MaxAttempts       int
	LogLevel          string
	Dev               bool
	ShowVersion       bool
}

// LoadDotEnv reads path into the process environment. A missing file is not
// an error; variables already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newViper(flags *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	return v, nil
}

func commonFlags(flags *pflag.FlagSet) {
	flags.String("token", "", "Bearer token")
	flags.String("log-level", defaultLogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("dev", false, "Human readable console logs")
}

func LoadServer(args []string) (Server, error) {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.StringP("addr", "a", defaultAddr, "HTTP listen address")
	commonFlags(flags)

	v, err := newViper(flags, args)
	if err != nil {
		return Server{}, err
	}
	return Server{
		Addr:     v.GetString("addr"),
		Token:    v.GetString("token"),
		LogLevel: v.GetString("log-level"),
		Dev:      v.GetBool("dev"),
	}, nil
}

// LoadWatch parses roomwatch settings. Room ids come from --room and from
// positional arguments.
func LoadWatch(args []string) (Watch, error) {
	flags := pflag.NewFlagSet("roomwatch", pflag.ContinueOnError)
	flags.String("base-url", defaultBaseURL, "Base URL of the snapshot endpoint")
	flags.String("ws-url", defaultWSURL, "Websocket URL of the streaming channel")
	flags.StringSliceP("room", "r", nil, "Room id to watch (repeatable)")
	flags.Duration("reconnect-delay", defaultReconnectDelay, "Delay before each recovery attempt")
	flags.Duration("max-reconnect-delay", 0, "Cap for exponential backoff; 0 keeps the delay fixed")
	flags.Int("max-attempts", 0, "Consecutive failed recoveries before giving up; 0 retries forever")
	flags.BoolP("version", "v", false, "Show version information")
	commonFlags(flags)

	v, err := newViper(flags, args)
	if err != nil {
		return Watch{}, err
	}

	w := Watch{
		BaseURL:           strings.TrimRight(v.GetString("base-url"), "/"),
		WSURL:             v.GetString("ws-url"),
		Token:             v.GetString("token"),
		Rooms:             splitRooms(append(v.GetStringSlice("room"), flags.Args()...)),
		ReconnectDelay:    v.GetDuration("reconnect-delay"),
		MaxReconnectDelay: v.GetDuration("max-reconnect-delay"),
		MaxAttempts:       v.GetInt("max-attempts"),
		LogLevel:          v.GetString("log-level"),
		Dev:               v.GetBool("dev"),
		ShowVersion:       v.GetBool("version"),
	}
	if w.ShowVersion {
		return w, nil
	}
	return w, w.validate()
}

// splitRooms accepts comma separated ids in any entry. Viper splits env
// values on whitespace only, so ROOMSYNC_ROOM=g1,g2 arrives as one entry.
func splitRooms(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, id := range strings.Split(entry, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func (w Watch) validate() error {
	var err error
	if len(w.Rooms) == 0 {
		err = multierr.Append(err, errors.New("at least one room id is required"))
	}
	if w.ReconnectDelay <= 0 {
		err = multierr.Append(err, errors.New("reconnect-delay must be positive"))
	}
	if w.MaxReconnectDelay != 0 && w.MaxReconnectDelay < w.ReconnectDelay {
		err = multierr.Append(err, errors.New("max-reconnect-delay must not be below reconnect-delay"))
	}
	if w.MaxAttempts < 0 {
		err = multierr.Append(err, errors.New("max-attempts must not be negative"))
	}
	return err
}
