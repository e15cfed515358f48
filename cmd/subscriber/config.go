package main

import (
	"net/url"
	"time"
)

type Config struct {
	URL string

	// Optional: if empty, every event is shown.
	Events []string

	Rows     int
	Interval time.Duration
}

// endpoint returns the channel URL with one ?event= per filtered event.
func (c Config) endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	if len(c.Events) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for _, ev := range c.Events {
		q.Add("event", ev)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
