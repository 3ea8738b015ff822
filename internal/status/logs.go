package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

type logsAPI interface {
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// LogTail reads the last lines of a job's CloudWatch log stream.
type LogTail struct {
	api      logsAPI
	logGroup string
	timeout  time.Duration
}

// NewLogTail reads streams from logGroup (Batch uses /aws/batch/job).
func NewLogTail(client *cloudwatchlogs.Client, logGroup string, timeout time.Duration) *LogTail {
	return &LogTail{api: client, logGroup: logGroup, timeout: timeout}
}

// Tail returns up to n of the most recent messages in stream, oldest first.
func (t *LogTail) Tail(ctx context.Context, stream string, n int) ([]string, error) {
	if stream == "" {
		return nil, fmt.Errorf("job has no log stream")
	}
	if n <= 0 {
		return nil, nil
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	out, err := t.api.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(t.logGroup),
		LogStreamName: aws.String(stream),
		Limit:         aws.Int32(int32(n)),
		StartFromHead: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("GetLogEvents %s/%s: %w", t.logGroup, stream, err)
	}

	lines := make([]string, 0, len(out.Events))
	for _, ev := range out.Events {
		lines = append(lines, strings.TrimRight(aws.ToString(ev.Message), "\n"))
	}
	return lines, nil
}
