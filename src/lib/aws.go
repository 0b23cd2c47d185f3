package lib

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func AWSGetSecretsManagerClient(ctx context.Context) (*secretsmanager.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("Error loading default config: %s\n", err.Error())
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// GetSecretString reads a plain-text secret from AWS Secrets Manager.
func GetSecretString(ctx context.Context, client SecretsClient, secretId string) (string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretId),
	})
	if err != nil {
		log.Printf("[secrets] Error retrieving %s: %s\n", secretId, err.Error())
		return "", err
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretId)
	}
	return strings.TrimSpace(*out.SecretString), nil
}

// GetHexSecret reads a hex encoded secret and decodes it.
func GetHexSecret(ctx context.Context, client SecretsClient, secretId string) ([]byte, error) {
	value, err := GetSecretString(ctx, client, secretId)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, errors.New("secret is empty")
	}
	return hex.DecodeString(value)
}
