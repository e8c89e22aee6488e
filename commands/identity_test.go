package commands

import (
	"testing"
)

func TestWhoami(t *testing.T) {
	cases := goldenTestSuite{
		"no-arg": {Args: []string{"whoami"}},
	}

	cases.Run(t, Whoami)
}

func TestId(t *testing.T) {
	cases := goldenTestSuite{
		"no-arg":     {Args: []string{"id"}},
		"user":       {Args: []string{"id", "-u"}},
		"user-name":  {Args: []string{"id", "-u", "-n"}},
		"group-name": {Args: []string{"id", "-gn"}},
		"names-only": {Args: []string{"id", "-n"}},
	}

	cases.Run(t, Id)
}

func TestHostname(t *testing.T) {
	cases := goldenTestSuite{
		"no-arg": {Args: []string{"hostname"}},
		"short":  {Args: []string{"hostname", "-s"}},
		"set":    {Args: []string{"hostname", "other"}},
	}

	cases.Run(t, Hostname)
}
