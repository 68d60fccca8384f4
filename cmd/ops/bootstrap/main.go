// Command bootstrap walks an operator through populating Parameter Store
// with the values the lifecycle binaries resolve through their X_SSM_PARAM
// pointer variables.
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=prod --profile=edu-prod --region=eu-west-1
//	go run ./cmd/ops/bootstrap --env=staging --skip-optional
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"eduplatform/internal/app"
	"eduplatform/internal/config"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

const identityTimeout = 10 * time.Second

// session is the AWS identity the parameters are written with.
type session struct {
	env       string
	profile   string
	region    string
	accountID string
	callerARN string
	aws       aws.Config
}

type IdentityClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func main() {
	env := flag.String("env", "", "Target environment: dev, staging or prod (required)")
	profile := flag.String("profile", "", "AWS CLI profile (default credential chain when empty)")
	region := flag.String("region", "us-east-1", "AWS region")
	skipOptional := flag.Bool("skip-optional", false, "Skip optional parameters without prompting")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Populates the SSM parameters read by the EduPlatform lifecycle services.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  bootstrap --env=dev [--profile=NAME] [--region=REGION] [--skip-optional]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if !validEnvironments[*env] {
		fmt.Fprintf(os.Stderr, "error: --env must be dev, staging or prod (got %q)\n\n", *env)
		flag.Usage()
		os.Exit(1)
	}

	logger := app.NewLoggerTo(os.Stderr, "info")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := openSession(ctx, *env, *profile, *region)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	logger.Info("AWS identity verified", "account_id", sess.accountID, "arn", sess.callerARN, "region", sess.region)

	runner := NewRunner(NewParameterStore(ssm.NewFromConfig(sess.aws), sess.env, logger), inventory(NewChecks()), os.Stdin, os.Stderr)
	runner.skipOptional = *skipOptional

	if sess.env == "prod" && !confirmProduction(runner.io, sess) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}
	printBanner(os.Stderr, sess)

	if err := runner.Run(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	logger.Info("bootstrap completed", "env", sess.env, "account", sess.accountID, "region", sess.region)
}

func openSession(ctx context.Context, env, profile, region string) (*session, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	sess := &session{env: env, profile: profile, region: region, aws: cfg}
	if err := sess.verify(ctx, sts.NewFromConfig(cfg)); err != nil {
		return nil, err
	}
	return sess, nil
}

// verify records who the credentials belong to. Nothing is written before
// this succeeds.
func (s *session) verify(ctx context.Context, client IdentityClient) error {
	ctx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()

	identity, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("STS GetCallerIdentity failed for profile %q in %q, check the AWS credentials: %w",
			s.profile, s.region, err)
	}
	s.accountID = aws.ToString(identity.Account)
	s.callerARN = aws.ToString(identity.Arn)
	return nil
}

// confirmProduction requires the operator to type "yes".
func confirmProduction(p *prompter, s *session) bool {
	p.banner("WARNING: You are targeting the PRODUCTION environment")
	p.printf("  Account: %s\n  Region:  %s\n  ARN:     %s\n\n", s.accountID, s.region, s.callerARN)
	answer, err := p.line("Type 'yes' to continue: ")
	return err == nil && strings.EqualFold(strings.TrimSpace(answer), "yes")
}

func printBanner(out io.Writer, s *session) {
	fmt.Fprintf(out, "\n  EduPlatform Bootstrap\n")
	fmt.Fprintf(out, "  Environment:  %s\n", s.env)
	fmt.Fprintf(out, "  AWS Account:  %s\n", s.accountID)
	fmt.Fprintf(out, "  AWS Region:   %s\n", s.region)
	fmt.Fprintf(out, "  Identity:     %s\n", s.callerARN)
	if s.profile != "" {
		fmt.Fprintf(out, "  Profile:      %s\n", s.profile)
	}
	fmt.Fprintf(out, "  SSM Prefix:   %s\n\n", config.ParameterPath(s.env, ""))
}
