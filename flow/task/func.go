package task

import (
	"context"
	"reflect"
	"runtime"
	"strings"

	"github.com/flowstate-go/flowstate/flow/codec"
)

// Handler executes one claimed task. A Handler binds a task name to code;
// the worker looks handlers up by the name stored on the task row.
type Handler interface {
	// Name is the task name handlers register under.
	Name() string

	// Run decodes the stored input, invokes the function, and encodes the
	// output. A returned *Suspend parks the task; any other error goes
	// through the retry policy.
	Run(ctx context.Context, input []byte) ([]byte, error)

	// RetryPolicy governs errors returned by Run.
	RetryPolicy() RetryPolicy
}

// Func binds a typed function to a task name. In and Out travel through the
// queue encoded by the codec, so both must round-trip through it.
type Func[In, Out any] struct {
	name   string
	fn     func(ctx context.Context, in In) (Out, error)
	codec  codec.Codec
	policy *RetryPolicy
}

// NewFunc wraps fn under its derived name: the fully qualified function name
// as the runtime reports it ("example.com/app/billing.Charge"). Anonymous
// functions get compiler-generated names; register those with NewNamedFunc
// instead.
func NewFunc[In, Out any](fn func(ctx context.Context, in In) (Out, error)) *Func[In, Out] {
	return NewNamedFunc(FuncName(fn), fn)
}

// NewNamedFunc wraps fn under an explicit name.
func NewNamedFunc[In, Out any](name string, fn func(ctx context.Context, in In) (Out, error)) *Func[In, Out] {
	return &Func[In, Out]{
		name:  name,
		fn:    fn,
		codec: codec.Default,
	}
}

// WithPolicy sets the retry policy for errors from this function and returns
// the same Func for chaining.
func (f *Func[In, Out]) WithPolicy(p RetryPolicy) *Func[In, Out] {
	f.policy = &p
	return f
}

// WithCodec overrides the payload codec and returns the same Func.
func (f *Func[In, Out]) WithCodec(c codec.Codec) *Func[In, Out] {
	f.codec = c
	return f
}

func (f *Func[In, Out]) Name() string { return f.name }

func (f *Func[In, Out]) RetryPolicy() RetryPolicy {
	if f.policy != nil {
		return *f.policy
	}
	return DefaultPolicy
}

func (f *Func[In, Out]) Run(ctx context.Context, input []byte) ([]byte, error) {
	in, err := codec.Decode[In](f.codec, input)
	if err != nil {
		return nil, err
	}
	out, err := f.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return f.codec.Marshal(out)
}

// FuncName resolves the fully qualified runtime name of fn, the default task
// name for functions registered without an explicit one. Method values carry
// a "-fm" suffix, which is stripped.
func FuncName(fn any) string {
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	return strings.TrimSuffix(name, "-fm")
}
