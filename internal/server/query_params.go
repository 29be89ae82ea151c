package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

func parseID(raw string) snowflake.ID {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return id
}

func environmentParam(raw string) (usagedomain.Environment, error) {
	if strings.TrimSpace(raw) == "" {
		return usagedomain.EnvProd, nil
	}
	return usagedomain.ParseEnvironment(raw)
}

func providerParam(raw string) (*usagedomain.Provider, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	p, err := usagedomain.ParseProvider(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func dateParam(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}
