// Package compute runs training jobs against sealed assets inside an
// isolated clean-room function. The blob never leaves the clean room;
// callers only receive the job's status, logs and metrics.
package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

// Invocation errors.
var (
	ErrEmptyStorageKey = errors.New("storage key cannot be empty")
	ErrEmptyScript     = errors.New("training script cannot be empty")
)

// JobError is a failure reported by the clean-room function itself, as
// opposed to a transport failure reaching it.
type JobError struct {
	Kind    string
	Payload string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("clean room reported %s: %s", e.Kind, e.Payload)
}

// request is the clean-room input contract.
type request struct {
	S3Key  string `json:"s3Key"`
	Script string `json:"script"`
	Bucket string `json:"bucket"`
}

// Result is the clean-room output. Raw keeps the undecoded payload so
// callers can pass through fields this struct does not model.
type Result struct {
	Status  string            `json:"status,omitempty"`
	Logs    []string          `json:"logs,omitempty"`
	Metrics map[string]string `json:"metrics,omitempty"`
	Raw     json.RawMessage   `json:"-"`
}

// API is the slice of the Lambda client the invoker needs.
type API interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Config holds the clean-room invoker settings.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// FunctionName is the clean-room function. Required.
	FunctionName string
	// Bucket is the object-store bucket holding sealed blobs.
	Bucket string
}

// Invoker submits training jobs to the clean-room function.
type Invoker struct {
	client   API
	function string
	bucket   string
}

// New creates an Invoker with its own Lambda client.
func New(cfg Config) *Invoker {
	client := lambda.New(lambda.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	})
	return NewWithClient(client, cfg.FunctionName, cfg.Bucket)
}

// NewWithClient creates an Invoker around an existing client.
func NewWithClient(client API, functionName, bucket string) *Invoker {
	return &Invoker{client: client, function: functionName, bucket: bucket}
}

// Run executes the training script against the sealed blob at storageKey
// and returns the clean room's report.
func (i *Invoker) Run(ctx context.Context, storageKey, script string) (*Result, error) {
	if storageKey == "" {
		return nil, ErrEmptyStorageKey
	}
	if script == "" {
		return nil, ErrEmptyScript
	}

	payload, err := json.Marshal(request{S3Key: storageKey, Script: script, Bucket: i.bucket})
	if err != nil {
		return nil, fmt.Errorf("encoding clean room request: %w", err)
	}

	out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(i.function),
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking clean room: %w", err)
	}
	if out.FunctionError != nil {
		return nil, &JobError{Kind: aws.ToString(out.FunctionError), Payload: string(out.Payload)}
	}

	result := &Result{Raw: append(json.RawMessage(nil), out.Payload...)}
	if len(out.Payload) > 0 {
		if err := json.Unmarshal(out.Payload, result); err != nil {
			return nil, fmt.Errorf("decoding clean room response: %w", err)
		}
	}
	return result, nil
}
