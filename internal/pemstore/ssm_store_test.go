package pemstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	mu        sync.Mutex
	params    map[string]ssmtypes.Parameter
	throttles int
	putCalls  int
	getCalls  int
	failWith  error
}

func newFakeSSM() *fakeSSM {
	return &fakeSSM{params: make(map[string]ssmtypes.Parameter)}
}

func (f *fakeSSM) fail() error {
	if f.failWith != nil {
		return f.failWith
	}
	if f.throttles > 0 {
		f.throttles--
		return errors.New("operation error SSM: ThrottlingException: Rate exceeded")
	}
	return nil
}

func (f *fakeSSM) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	if err := f.fail(); err != nil {
		return nil, err
	}

	p, ok := f.params[aws.ToString(params.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &p}, nil
}

func (f *fakeSSM) PutParameter(_ context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.putCalls++
	if err := f.fail(); err != nil {
		return nil, err
	}

	f.params[aws.ToString(params.Name)] = ssmtypes.Parameter{
		Name:  params.Name,
		Value: params.Value,
		Type:  params.Type,
	}
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func testSSMStore(client SSMAPI) *SSMStore {
	return NewSSMStore(client, SSMStoreConfig{
		Prefix:   "/selfca/test",
		MaxTries: 3,
		BackOff:  &backoff.ZeroBackOff{},
	})
}

func TestSSMStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip with parameter types", func(t *testing.T) {
		client := newFakeSSM()
		store := testSSMStore(client)

		require.NoError(t, store.Write(ctx, "root.cert", "cert"))
		require.NoError(t, store.Write(ctx, "root.key", "key"))
		require.NoError(t, store.Write(ctx, "root.pub.key", "pub"))

		require.Equal(t, ssmtypes.ParameterTypeString, client.params["/selfca/test/root.cert"].Type)
		require.Equal(t, ssmtypes.ParameterTypeSecureString, client.params["/selfca/test/root.key"].Type)
		require.Equal(t, ssmtypes.ParameterTypeString, client.params["/selfca/test/root.pub.key"].Type)

		content, err := store.Read(ctx, "root.key")
		require.NoError(t, err)
		require.Equal(t, "key", content)
	})

	t.Run("missing parameter", func(t *testing.T) {
		store := testSSMStore(newFakeSSM())

		_, err := store.Read(ctx, "missing.cert")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("retries throttled requests", func(t *testing.T) {
		client := newFakeSSM()
		client.throttles = 2
		store := testSSMStore(client)

		require.NoError(t, store.Write(ctx, "root.cert", "cert"))
		require.Equal(t, 3, client.putCalls)
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		client := newFakeSSM()
		client.throttles = 10
		store := testSSMStore(client)

		_, err := store.Read(ctx, "root.cert")
		require.ErrorIs(t, err, ErrThrottled)
		require.Equal(t, 3, client.getCalls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		client := newFakeSSM()
		client.failWith = errors.New("AccessDeniedException")
		store := testSSMStore(client)

		err := store.Write(ctx, "root.cert", "cert")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrThrottled)
		require.Equal(t, 1, client.putCalls)
	})
}

func TestParameterName(t *testing.T) {
	require.Equal(t, "/selfca/dev/root.cert", NewSSMStore(nil, SSMStoreConfig{Prefix: "selfca/dev"}).parameterName("root.cert"))
	require.Equal(t, "/certs/root.cert", NewSSMStore(nil, SSMStoreConfig{}).parameterName("certs/root.cert"))
}
