package ncpack

import (
	"log/slog"

	"github.com/hupe1980/ncpack/codec"
	"github.com/hupe1980/ncpack/config"
	"github.com/hupe1980/ncpack/memprobe"
	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/resource"
)

type options struct {
	memoryBudget     int64
	probe            memprobe.Probe
	bits             quantization.Bits
	policy           quantization.OverflowPolicy
	compression      codec.Compression
	ioLimit          int64
	workers          int
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
	err              error
}

func defaultOptions() options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	applyConfig(&o, config.Default())
	return o
}

func applyConfig(o *options, cfg config.Config) {
	probe, err := cfg.MemoryProbe()
	if err != nil {
		o.err = err
		return
	}
	o.memoryBudget = cfg.MemoryBudgetBytes
	o.probe = probe
	o.bits = cfg.Bits
	o.policy = cfg.Overflow
	o.compression = cfg.Compression
	o.ioLimit = cfg.IOLimitBytes
	o.workers = cfg.Workers
}

// Option configures an Engine.
type Option func(*options)

// WithConfig applies a loaded configuration, including its logger settings.
// Options after it override individual values.
//
// Example:
//
//	fs := pflag.NewFlagSet("pack", pflag.ExitOnError)
//	config.RegisterFlags(fs)
//	_ = fs.Parse(os.Args[1:])
//	cfg, _ := config.Load(fs)
//	eng, _ := ncpack.New(ncpack.WithConfig(cfg))
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		applyConfig(o, cfg)
		if cfg.LogFormat == "json" {
			o.logger = NewJSONLogger(cfg.LogLevel)
		} else {
			o.logger = NewTextLogger(cfg.LogLevel)
		}
	}
}

// WithMemoryBudget sets the memory budget in bytes. It bounds both the
// slab buffers and the process memory reported by the probe.
//
// The default probe reports the whole process data segment (VmData), which
// includes the Go runtime's reserved heap arenas and goroutine stacks, so a
// budget of a few tens of MiB can fail its first check before any slab is
// read. Where /proc is unavailable the probe falls back to the peak RSS
// from getrusage. Use WithProbe(memprobe.Nop{}) to bound slab buffers only.
func WithMemoryBudget(bytes int64) Option {
	return func(o *options) {
		o.memoryBudget = bytes
	}
}

// WithProbe sets the memory probe checked before the first slab and after
// every slab. Pass memprobe.Nop{} to disable process memory checks.
func WithProbe(p memprobe.Probe) Option {
	return func(o *options) {
		if p == nil {
			p = memprobe.Nop{}
		}
		o.probe = p
	}
}

// WithBits sets the packed integer width.
func WithBits(bits quantization.Bits) Option {
	return func(o *options) {
		o.bits = bits
	}
}

// WithOverflowPolicy sets how values outside the packing range are handled.
// The range pass makes overflow impossible for immutable sources, so this
// mostly matters for sources that change between passes.
func WithOverflowPolicy(p quantization.OverflowPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithCompression sets the archive block compression.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithIOLimit limits archive and raw array IO to bytesPerSec. Zero disables it.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithWorkers sets the controller's worker slots, which bound parallel
// block decoding in Unpack. Zero means GOMAXPROCS. It has no effect with
// WithResourceController.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithResourceController shares a resource controller between engines.
// The controller's memory limit then applies to all of them jointly.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &ncpack.BasicMetricsCollector{}
//	eng, _ := ncpack.New(ncpack.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
//	fmt.Printf("Slabs: %d, Peak memory: %d\n", stats.SlabCount, stats.PeakMemory)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}
