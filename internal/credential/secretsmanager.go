package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretValueGetter is the subset of the Secrets Manager client the source uses.
type SecretValueGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource reads one JSON secret from AWS Secrets Manager. The
// secret uses the same shape as the credentials file:
//
//	{"stripe": "sk_live_xxx", "klarna": {"username": "m", "password": "p"}}
type SecretsManagerSource struct {
	SecretID string
	Region   string

	// Client defaults to a client built from the default AWS config chain.
	Client SecretValueGetter
}

func (s *SecretsManagerSource) Name() string { return "secretsmanager " + s.SecretID }

func (s *SecretsManagerSource) Load(ctx context.Context, _ *Store) (map[string]string, error) {
	client := s.Client
	if client == nil {
		var opts []func(*awsconfig.LoadOptions) error
		if s.Region != "" {
			opts = append(opts, awsconfig.WithRegion(s.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client = secretsmanager.NewFromConfig(awsCfg)
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretID),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return nil, errors.New("secret has no string value")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &doc); err != nil {
		return nil, fmt.Errorf("parse secret JSON: %w", err)
	}
	return flatten(doc)
}
