package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ceres/prenatal/internal/config"
	"github.com/ceres/prenatal/internal/domain/obstetrics"
	"github.com/ceres/prenatal/internal/platform/auth"
)

type assessOptions struct {
	age     int
	height  float64
	weight  float64
	edd     string
	factors []string
}

type gestationReport struct {
	EDD            string `json:"edd"`
	Weeks          int    `json:"weeks"`
	WeeksRemaining int    `json:"weeks_remaining"`
	Trimester      int    `json:"trimester"`
	FetalSize      string `json:"fetal_size"`
}

type assessmentReport struct {
	Risk       obstetrics.RiskAssessment `json:"risk"`
	Factors    []string                  `json:"factors"`
	Biometrics *obstetrics.Biometrics    `json:"biometrics,omitempty"`
	Gestation  *gestationReport          `json:"gestation,omitempty"`
}

// parseFactor reads "category.flag".
func parseFactor(s string) (obstetrics.Category, obstetrics.Flag, error) {
	cat, flag, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return "", "", fmt.Errorf("factor %q must be category.flag", s)
	}
	c, err := obstetrics.ParseCategory(cat)
	if err != nil {
		return "", "", err
	}
	f, err := obstetrics.ParseFlag(c, flag)
	if err != nil {
		return "", "", err
	}
	return c, f, nil
}

func buildAssessment(opts assessOptions, today time.Time) (*assessmentReport, error) {
	set := obstetrics.NewRiskFactorSet()
	for _, raw := range opts.factors {
		c, f, err := parseFactor(raw)
		if err != nil {
			return nil, err
		}
		if set.Get(c, f) {
			continue
		}
		if set, err = obstetrics.ApplyToggle(set, c, f); err != nil {
			return nil, err
		}
	}

	report := &assessmentReport{
		Risk:    obstetrics.AssessRisk(opts.age, set),
		Factors: set.Active(),
	}
	if opts.height > 0 || opts.weight > 0 {
		b := obstetrics.ClassifyBiometrics(opts.weight, opts.height)
		report.Biometrics = &b
	}
	if opts.edd != "" {
		edd, err := obstetrics.ParseDate(opts.edd)
		if err != nil {
			return nil, err
		}
		weeks := obstetrics.WeeksFromEDD(edd, obstetrics.Today(today))
		remaining := obstetrics.FullTermWeeks - weeks
		if remaining < 0 {
			remaining = 0
		}
		report.Gestation = &gestationReport{
			EDD:            edd.Format(obstetrics.DateLayout),
			Weeks:          weeks,
			WeeksRemaining: remaining,
			Trimester:      obstetrics.Trimester(weeks),
			FetalSize:      obstetrics.FetalSizeComparison(weeks),
		}
	}
	return report, nil
}

func assessCmd() *cobra.Command {
	var opts assessOptions
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Classify obstetric risk and biometrics without storing anything",
		Example: "  ceres-server assess --age 38 --height 160 --weight 60 --edd 2025-03-01 \\\n" +
			"    --factor medical.hypertension_chronic",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := buildAssessment(opts, time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&opts.age, "age", 0, "patient age in years")
	cmd.Flags().Float64Var(&opts.height, "height", 0, "height in cm")
	cmd.Flags().Float64Var(&opts.weight, "weight", 0, "pre-pregnancy weight in kg")
	cmd.Flags().StringVar(&opts.edd, "edd", "", "estimated due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.factors, "factor", nil, "risk factor as category.flag, repeatable")
	_ = cmd.MarkFlagRequired("age")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token with AUTH_SIGNING_KEY for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to sign tokens")
			}
			tok, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				SigningKey: []byte(cfg.AuthSigningKey),
			}, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "patient ID (UUID) or clinician name")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"patient"}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
