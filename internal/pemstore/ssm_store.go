package pemstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// ErrThrottled marks SSM requests rejected for rate limiting.
var ErrThrottled = errors.New("AWS request throttled")

const defaultMaxTries = 5

// SSMAPI is the subset of the SSM client used by SSMStore.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMStoreConfig configures SSMStore.
type SSMStoreConfig struct {
	// Prefix is prepended to every path, e.g. "/selfca/dev".
	Prefix string

	// MaxTries bounds attempts for throttled requests. Zero means five.
	MaxTries uint

	// BackOff overrides the retry schedule, mainly for tests.
	BackOff backoff.BackOff
}

// SSMStore keeps artifacts in SSM Parameter Store. Private keys are stored
// as SecureString, everything else as String.
type SSMStore struct {
	client SSMAPI
	cfg    SSMStoreConfig
}

var _ Store = (*SSMStore)(nil)

// NewSSMStore returns a store writing parameters under cfg.Prefix.
func NewSSMStore(client SSMAPI, cfg SSMStoreConfig) *SSMStore {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	return &SSMStore{client: client, cfg: cfg}
}

// Write puts content as a parameter, overwriting an existing one.
func (s *SSMStore) Write(ctx context.Context, p, content string) error {
	name := s.parameterName(p)
	paramType := parameterType(name)

	_, err := retry(ctx, s.cfg, func() (*ssm.PutParameterOutput, error) {
		return s.client.PutParameter(ctx, &ssm.PutParameterInput{
			Name:      aws.String(name),
			Value:     aws.String(content),
			Type:      paramType,
			Overwrite: aws.Bool(true),
		})
	})
	if err != nil {
		return wrapSSMError(err, fmt.Sprintf("failed to put parameter %s", name))
	}

	log.Info().Str("parameter", name).Str("type", string(paramType)).Msg("Uploaded to SSM Parameter Store")
	return nil
}

// Read fetches and decrypts a parameter. A missing parameter is ErrNotFound.
func (s *SSMStore) Read(ctx context.Context, p string) (string, error) {
	name := s.parameterName(p)

	output, err := retry(ctx, s.cfg, func() (*ssm.GetParameterOutput, error) {
		return s.client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("parameter %s: %w", name, ErrNotFound)
		}
		return "", wrapSSMError(err, fmt.Sprintf("failed to get parameter %s", name))
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}

	return *output.Parameter.Value, nil
}

func (s *SSMStore) parameterName(p string) string {
	return path.Join("/", s.cfg.Prefix, p)
}

// parameterType picks SecureString for private keys.
func parameterType(name string) ssmtypes.ParameterType {
	if strings.HasSuffix(name, ".key") && !strings.HasSuffix(name, ".pub.key") {
		return ssmtypes.ParameterTypeSecureString
	}
	return ssmtypes.ParameterTypeString
}

// retry runs op until it succeeds, fails with a non throttling error or
// runs out of attempts.
func retry[T any](ctx context.Context, cfg SSMStoreConfig, op func() (T, error)) (T, error) {
	b := cfg.BackOff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}

	return backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil {
			if isThrottle(err) {
				log.Warn().Err(err).Msg("SSM request throttled, retrying")
				return res, err
			}
			return res, backoff.Permanent(err)
		}
		return res, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(cfg.MaxTries))
}

func isThrottle(err error) bool {
	var tooMany *ssmtypes.TooManyUpdates
	if errors.As(err, &tooMany) {
		return true
	}

	// AWS SDK v2 doesn't always use typed errors for throttling
	errMsg := err.Error()
	return strings.Contains(errMsg, "ThrottlingException") ||
		strings.Contains(errMsg, "TooManyRequestsException") ||
		strings.Contains(errMsg, "Throttling")
}

// wrapSSMError wraps SSM errors, marking throttling failures with ErrThrottled.
func wrapSSMError(err error, msg string) error {
	if isThrottle(err) {
		return fmt.Errorf("%s: %w: %v", msg, ErrThrottled, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
