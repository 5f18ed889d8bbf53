package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/neighborwatch/internal/client/config"
)

func restoreSeams(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	origPut := putObject
	origPresign := presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
		putObject = origPut
		presignGetObject = origPresign
	})
}

func testConfig() config.StorageConfig {
	return config.StorageConfig{
		Endpoint:        "http://127.0.0.1:9000",
		Region:          "us-east-1",
		Bucket:          "reports",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		PresignTTL:      15 * time.Minute,
	}
}

func TestReportKey(t *testing.T) {
	key := ReportKey(time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^reports/2024/03/09/[0-9a-f-]{36}\.csv$`), key)
	assert.NotEqual(t, key, ReportKey(time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)))
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	restoreSeams(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}
	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.New(opts)
	}

	store, err := NewS3Store(context.Background(), testConfig())
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Store_Disabled(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{})
	assert.Error(t, err)
}

func TestNewS3Store_LoadError(t *testing.T) {
	restoreSeams(t)
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("boom")
	}
	_, err := NewS3Store(context.Background(), testConfig())
	assert.ErrorContains(t, err, "boom")
}

func TestUploadAndPresign(t *testing.T) {
	restoreSeams(t)
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}

	var put *s3.PutObjectInput
	var body string
	putObject = func(_ *s3.Client, _ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		put = in
		b, _ := io.ReadAll(in.Body)
		body = string(b)
		return &s3.PutObjectOutput{}, nil
	}
	var get *s3.GetObjectInput
	var expires time.Duration
	presignGetObject = func(_ *s3.PresignClient, _ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		get = in
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		expires = po.Expires
		return &v4.PresignedHTTPRequest{URL: "https://example.test/reports/x.csv?sig=1"}, nil
	}

	store, err := NewS3Store(context.Background(), testConfig())
	require.NoError(t, err)

	require.NoError(t, store.Upload(context.Background(), "reports/x.csv", strings.NewReader("a,b\n"), "text/csv"))
	assert.Equal(t, "reports", aws.ToString(put.Bucket))
	assert.Equal(t, "reports/x.csv", aws.ToString(put.Key))
	assert.Equal(t, "text/csv", aws.ToString(put.ContentType))
	assert.Equal(t, "a,b\n", body)

	url, err := store.PresignGet(context.Background(), "reports/x.csv", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/reports/x.csv?sig=1", url)
	assert.Equal(t, "reports/x.csv", aws.ToString(get.Key))
	assert.Equal(t, time.Hour, expires)
}

func TestUpload_Error(t *testing.T) {
	restoreSeams(t)
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	putObject = func(*s3.Client, context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, errors.New("access denied")
	}
	store, err := NewS3Store(context.Background(), testConfig())
	require.NoError(t, err)
	err = store.Upload(context.Background(), "k", strings.NewReader(""), "text/csv")
	assert.ErrorContains(t, err, "access denied")
}
