package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// getenv reads typed environment values and collects parse errors.
type getenv struct {
	errs []error
}

func (ge *getenv) Err() error {
	return errors.Join(ge.errs...)
}

func getValue[T any](key string, defaultValue T, parse func(string) (T, error)) (T, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue, nil
	}
	v, err := parse(s)
	if err != nil {
		return defaultValue, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func (ge *getenv) collect(err error) {
	if err != nil {
		ge.errs = append(ge.errs, err)
	}
}

func (ge *getenv) String(key, defaultValue string) string {
	v, _ := getValue(key, defaultValue, func(s string) (string, error) { return s, nil })
	return v
}

// List splits a comma separated value, dropping empty items.
func (ge *getenv) List(key string, defaultValue []string) []string {
	v, _ := getValue(key, defaultValue, func(s string) ([]string, error) {
		var out []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	})
	return v
}

func (ge *getenv) Int(key string, defaultValue int) int {
	v, err := getValue(key, defaultValue, strconv.Atoi)
	ge.collect(err)
	return v
}

func (ge *getenv) Duration(key string, defaultValue time.Duration) time.Duration {
	v, err := getValue(key, defaultValue, time.ParseDuration)
	ge.collect(err)
	return v
}
