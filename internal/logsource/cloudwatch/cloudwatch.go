// Package cloudwatch implements logsource.Source on CloudWatch Logs
// FilterLogEvents.
package cloudwatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/smithy-go"

	"logsweep/internal/logsource"
)

// FilterAPI is the subset of the CloudWatch Logs client used here.
type FilterAPI interface {
	FilterLogEvents(ctx context.Context, in *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

type Config struct {
	Region   string
	Endpoint string // optional override (LocalStack, VPC endpoints)
}

type Source struct {
	api FilterAPI
}

// New builds a Source from the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if r := strings.TrimSpace(cfg.Region); r != "" {
		opts = append(opts, awsconfig.WithRegion(r))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
	})
	return NewWithAPI(client), nil
}

// NewWithAPI wraps an existing client (or a fake in tests).
func NewWithAPI(api FilterAPI) *Source {
	return &Source{api: api}
}

func (s *Source) FilterEvents(ctx context.Context, q logsource.Query) (logsource.Result, error) {
	in := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName:  aws.String(q.Group),
		FilterPattern: aws.String(q.Pattern),
		StartTime:     aws.Int64(q.Start.UnixMilli()),
	}
	if !q.End.IsZero() {
		in.EndTime = aws.Int64(q.End.UnixMilli())
	}
	if q.Limit > 0 {
		in.Limit = aws.Int32(int32(q.Limit))
	}
	if q.StreamPrefix != "" {
		in.LogStreamNamePrefix = aws.String(q.StreamPrefix)
	}

	out, err := s.api.FilterLogEvents(ctx, in)
	if err != nil {
		return logsource.Result{}, &logsource.BackendError{Group: q.Group, Message: apiMessage(err), Err: err}
	}

	res := logsource.Result{
		Events:        make([]logsource.Event, 0, len(out.Events)),
		MoreAvailable: aws.ToString(out.NextToken) != "",
	}
	for _, e := range out.Events {
		res.Events = append(res.Events, logsource.Event{
			Message:   aws.ToString(e.Message),
			Timestamp: time.UnixMilli(aws.ToInt64(e.Timestamp)),
		})
	}
	return res, nil
}

// apiMessage prefers the service's own message over the SDK's wrapped
// "operation error ..." chain, which is too long for a chat line.
func apiMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.ErrorMessage(); msg != "" {
			return apiErr.ErrorCode() + ": " + msg
		}
		return apiErr.ErrorCode()
	}
	return err.Error()
}
