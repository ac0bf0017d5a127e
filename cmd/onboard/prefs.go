package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/spacekayak/phoneauth/prefs"
)

func status(c *cli.Context) error {
	store, err := prefs.Open(c.String("prefs"))
	if err != nil {
		return err
	}
	defer store.Close()

	done, err := store.OnboardingFlag().IsCompleted(c.Context)
	if err != nil {
		return err
	}
	if done {
		fmt.Fprintln(c.App.Writer, "onboarding: completed")
	} else {
		fmt.Fprintln(c.App.Writer, "onboarding: pending")
	}
	return nil
}

func reset(c *cli.Context) error {
	store, err := prefs.Open(c.String("prefs"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Remove(c.Context, prefs.OnboardingFile, prefs.OnboardingCompleteKey); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "onboarding flag cleared")
	return nil
}
