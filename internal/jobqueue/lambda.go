package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"
)

// ErrFunctionError is returned when the invoked function itself failed.
var ErrFunctionError = errors.New("lambda function error")

type lambdaAPI interface {
	Invoke(ctx context.Context, params *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// LambdaInvoker calls the single-file conversion function synchronously.
type LambdaInvoker struct {
	api      lambdaAPI
	function string
	timeout  time.Duration
}

// NewLambdaInvoker returns an invoker for the named function.
func NewLambdaInvoker(client *lambdasvc.Client, function string, timeout time.Duration) *LambdaInvoker {
	return &LambdaInvoker{api: client, function: function, timeout: timeout}
}

// Function returns the configured function name.
func (l *LambdaInvoker) Function() string { return l.function }

// InvokeSync sends payload and waits for the function's response body.
func (l *LambdaInvoker) InvokeSync(ctx context.Context, payload []byte) ([]byte, error) {
	if l.function == "" {
		return nil, fmt.Errorf("conversion lambda not configured")
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	log.Debug().Str("function", l.function).Int("payloadSize", len(payload)).Msg("Invoking conversion Lambda")

	out, err := l.api.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(l.function),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", l.function, err)
	}
	if out.FunctionError != nil {
		return out.Payload, fmt.Errorf("%w: %s: %s", ErrFunctionError, aws.ToString(out.FunctionError), string(out.Payload))
	}
	return out.Payload, nil
}
