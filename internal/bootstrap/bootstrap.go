// Package bootstrap resolves database connection parameters from AWS SSM
// Parameter Store and Secrets Manager.
//
// Resolution happens exactly once, during process startup, and produces an
// immutable [DatabaseParams] value that is passed to the rest of the
// program. There is no hidden cache and no lazy re-fetch: if the parameter
// surface is unreachable the process fails to start.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterClient is the slice of the SSM API the bootstrap needs.
type ParameterClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretClient is the slice of the Secrets Manager API the bootstrap needs.
type SecretClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// DatabaseParams is the resolved set of database connection parameters.
type DatabaseParams struct {
	Host     string
	Port     string
	DBName   string
	Username string
	Password string
}

// DSN assembles a pgx-compatible connection string from the resolved
// parameters. Credentials are URL-escaped; generated passwords routinely
// contain punctuation that would otherwise corrupt the URL.
func (p DatabaseParams) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.Username, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
		Path:   "/" + p.DBName,
	}
	return u.String()
}

type secretPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResolveDatabaseParams reads the DB_HOST, DB_NAME, DB_PORT, and SECRET_NAME
// parameters under prefix from SSM, then fetches the named secret (a JSON
// object with "username" and "password") from Secrets Manager.
func ResolveDatabaseParams(ctx context.Context, params ParameterClient, secrets SecretClient, prefix string) (DatabaseParams, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")

	host, err := getParameter(ctx, params, prefix+"/DB_HOST")
	if err != nil {
		return DatabaseParams{}, err
	}
	dbName, err := getParameter(ctx, params, prefix+"/DB_NAME")
	if err != nil {
		return DatabaseParams{}, err
	}
	port, err := getParameter(ctx, params, prefix+"/DB_PORT")
	if err != nil {
		return DatabaseParams{}, err
	}
	secretName, err := getParameter(ctx, params, prefix+"/SECRET_NAME")
	if err != nil {
		return DatabaseParams{}, err
	}

	out, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return DatabaseParams{}, fmt.Errorf("get secret %q: %w", secretName, err)
	}
	if out.SecretString == nil {
		return DatabaseParams{}, fmt.Errorf("secret %q has no string payload", secretName)
	}

	var creds secretPayload
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return DatabaseParams{}, fmt.Errorf("decode secret %q: %w", secretName, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return DatabaseParams{}, fmt.Errorf("secret %q is missing username or password", secretName)
	}

	return DatabaseParams{
		Host:     host,
		Port:     port,
		DBName:   dbName,
		Username: creds.Username,
		Password: creds.Password,
	}, nil
}

func getParameter(ctx context.Context, client ParameterClient, name string) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		return "", fmt.Errorf("parameter %q is empty", name)
	}

	return *out.Parameter.Value, nil
}
