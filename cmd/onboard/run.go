package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/spacekayak/phoneauth"
	"github.com/spacekayak/phoneauth/config"
	"github.com/spacekayak/phoneauth/internal/app"
	"github.com/spacekayak/phoneauth/logging"
	"github.com/spacekayak/phoneauth/onboarding"
	"github.com/spacekayak/phoneauth/prefs"
)

var errQuit = errors.New("quit")

// console serialises writes from the prompt loop and the session renderer.
type console struct {
	mu sync.Mutex
	w  io.Writer
	in *bufio.Scanner
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// prompt prints label and returns the trimmed next line. "q" or EOF quit.
func (c *console) prompt(label string) (string, error) {
	c.printf("%s> ", label)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	line := strings.TrimSpace(c.in.Text())
	if line == "q" {
		return "", errQuit
	}
	return line, nil
}

func runFlow(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.LoadFile(c.String("env-file"))
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	logger := log.Logger.Named("onboard")

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	store, err := prefs.Open(c.String("prefs"))
	if err != nil {
		return err
	}
	defer store.Close()

	ctrl, err := phoneauth.New().
		WithConfig(cfg.Flow()).
		WithBackend(deps.Backend).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	con := &console{w: c.App.Writer, in: bufio.NewScanner(c.App.Reader)}

	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		var prev phoneauth.Session
		for s := range snapshots {
			if line := describe(prev, s); line != "" {
				con.printf("%s\n", line)
			}
			prev = s
		}
	}()

	if deps.Outbox != nil {
		codes, stop := deps.Outbox.Listen(4)
		defer stop()
		go func() {
			for m := range codes {
				con.printf("[dev] code for %s: %s\n", phoneauth.MaskPhone(m.Phone), m.Code)
			}
		}()
	}

	nav := onboarding.NewNavigator(store.OnboardingFlag(), ctrl)
	route, err := nav.Start(ctx)
	if err != nil {
		logger.Warn("onboarding flag unreadable, showing onboarding", zap.Error(err))
	}

	err = func() error {
		if route == onboarding.RouteOnboarding {
			if err := showCarousel(ctx, con, nav); err != nil {
				return err
			}
			if err := showConsent(con, nav); err != nil {
				return err
			}
		} else {
			ctrl.Show()
		}
		return verifyPhone(ctx, con, ctrl, cfg.CountryCode)
	}()

	unsubscribe()
	<-rendered
	if errors.Is(err, errQuit) {
		ctrl.Dismiss()
		return nil
	}
	return err
}

func showCarousel(ctx context.Context, con *console, nav *onboarding.Navigator) error {
	var carousel onboarding.Carousel
	for {
		page, i := carousel.Current()
		con.printf("\n(%d/%d) %s\n", i+1, len(onboarding.Pages), page.Title)
		if _, err := con.prompt("[" + carousel.ButtonLabel() + "]"); err != nil {
			return err
		}
		if carousel.Advance() {
			return nav.Finish(ctx)
		}
	}
}

func showConsent(con *console, nav *onboarding.Navigator) error {
	consent := onboarding.Consent
	con.printf("\n%s\n\n%s\n", consent.Heading, consent.Summary)
	for _, p := range consent.Points {
		con.printf("  - %s\n", p)
	}
	if _, err := con.prompt("[" + consent.Accept + "]"); err != nil {
		return err
	}
	return nav.Understand()
}

func verifyPhone(ctx context.Context, con *console, ctrl *phoneauth.Controller, countryCode string) error {
	for ctrl.Session().Step == phoneauth.StepPhoneEntry {
		digits, err := con.prompt("phone " + countryCode)
		if err != nil {
			return err
		}
		if !ctrl.UpdatePhoneDigits(digits) || !ctrl.SubmitPhone(ctx) {
			con.printf("enter a %d digit number\n", phoneauth.PhoneDigits)
		}
	}

	for ctrl.Session().Step == phoneauth.StepCodeEntry {
		line, err := con.prompt("code (r to resend)")
		if err != nil {
			return err
		}
		if line == "r" {
			if !ctrl.Resend(ctx) {
				con.printf("resend available in %ds\n", ctrl.Session().ResendCooldown)
			}
			continue
		}
		if len(line) != phoneauth.OTPLength {
			con.printf("enter all %d digits\n", phoneauth.OTPLength)
			continue
		}
		for i := 0; i < len(line); i++ {
			ctrl.EditOTPSlot(i, line[i:i+1])
		}
		ctrl.SubmitCode(ctx)
	}

	if s := ctrl.Session(); s.Step == phoneauth.StepVerified {
		if s.Grant != nil && s.Grant.Subject != "" {
			con.printf("signed in as %s\n", s.Grant.Subject)
		}
		ctrl.Acknowledge()
	}
	return nil
}

// describe returns the line to print for the transition prev to cur, or "" when
// nothing the user cares about changed.
func describe(prev, cur phoneauth.Session) string {
	switch {
	case cur.Step != prev.Step && cur.Step == phoneauth.StepCodeEntry:
		return fmt.Sprintf("code sent to %s, resend in %ds", phoneauth.MaskPhone(cur.PhoneDigits), cur.ResendCooldown)
	case cur.Step != prev.Step && cur.Step == phoneauth.StepVerified:
		return "verified"
	case cur.OTPError && !prev.OTPError:
		return "incorrect code"
	case cur.LastError != "" && cur.LastError != prev.LastError:
		return "error: " + cur.LastError
	case cur.Step == phoneauth.StepCodeEntry && cur.ResendCooldown == 0 && prev.ResendCooldown > 0:
		return "you can request a new code"
	}
	return ""
}
