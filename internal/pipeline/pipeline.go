package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/BUNny0021/PDF-Ofice/internal/staging"
	"github.com/BUNny0021/PDF-Ofice/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDKey is the gin context key holding the request identifier
	RequestIDKey = "request_id"
	// RequestIDHeader carries the request identifier in and out
	RequestIDHeader = "X-Request-ID"

	fieldSingle          = "file"
	fieldMultiple        = "files"
	fieldMultipleBracket = "files[]"

	defaultNoFilesMessage = "No files uploaded."
	panicMessage          = "Unexpected error while processing the request."
	tooLargeMessage       = "Request is too large."
)

// Recorder receives per-request measurements
type Recorder interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
	IncInFlight()
	DecInFlight()
	AddStagedBytes(operation string, n int64)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}
func (noopRecorder) IncInFlight()                                  {}
func (noopRecorder) DecInFlight()                                  {}
func (noopRecorder) AddStagedBytes(string, int64)                  {}

// Pipeline turns Operations into gin handlers sharing intake, emission and cleanup
type Pipeline struct {
	area           *staging.Area
	logger         *logrus.Logger
	recorder       Recorder
	maxRequestSize int64
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithRecorder sets the measurement sink
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithMaxRequestSize limits the size of the whole multipart body
func WithMaxRequestSize(n int64) Option {
	return func(p *Pipeline) {
		p.maxRequestSize = n
	}
}

// New creates a pipeline that stages uploads into area
func New(area *staging.Area, logger *logrus.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		area:     area,
		logger:   logger,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequestID returns the identifier of the current request, assigning one if the middleware has not
func RequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Set(RequestIDKey, id)
	return id
}

// Handler returns the gin handler running op
func (p *Pipeline) Handler(op Operation) gin.HandlerFunc {
	def := op.Definition()
	return func(c *gin.Context) {
		p.handle(c, op, def)
	}
}

func (p *Pipeline) handle(c *gin.Context, op Operation, def Definition) {
	start := time.Now()
	requestID := RequestID(c)
	log := p.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"operation":  def.Name,
	})

	p.recorder.IncInFlight()
	defer p.recorder.DecInFlight()

	req := &Request{Operation: def.Name, RequestID: requestID}
	outcome := "success"
	var extra []string

	// Registered first so it runs last, after any panic has been turned into a response
	defer func() {
		p.area.Cleanup(req.cleanupPaths(extra...))
		p.recorder.ObserveOperation(def.Name, outcome, time.Since(start))
	}()

	fail := func(opErr *OperationError) {
		outcome = opErr.Kind.String()
		extra = append(extra, opErr.Cleanup...)

		entry := log.WithFields(logrus.Fields{
			"status": opErr.Status(),
			"kind":   opErr.Kind.String(),
		})
		if opErr.Cause != nil {
			entry = entry.WithError(opErr.Cause)
		}
		if opErr.Kind == KindConversion {
			entry.Error(opErr.Message)
		} else {
			entry.Warn(opErr.Message)
		}

		if c.Writer.Written() {
			// Part of the body is already on the wire
			c.Abort()
			return
		}
		Fail(c, opErr, requestID)
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Error("Recovered from panic")
			fail(Conversion(panicMessage, fmt.Errorf("panic: %v", r)))
		}
	}()

	files, params, opErr := p.intake(c, def)
	if opErr != nil {
		fail(opErr)
		return
	}
	req.Files = files
	req.Params = params
	for _, f := range files {
		p.recorder.AddStagedBytes(def.Name, f.Size)
	}

	for _, field := range def.Required {
		if req.Param(field.Name) == "" {
			fail(Validation(field.Message, nil))
			return
		}
	}

	ctx, span := telemetry.StartOperationSpan(c.Request.Context(), def.Name, requestID, params, len(files))
	result, err := execute(ctx, op, req, log)
	if err != nil {
		telemetry.EndSpan(span, err)
		fail(classify(err, def))
		return
	}
	if fr, ok := result.(*FileResult); ok && fr != nil {
		extra = append(extra, fr.Path)
	}

	if err := Emit(c, result); err != nil {
		telemetry.EndSpan(span, err)
		fail(classify(err, def))
		return
	}
	telemetry.EndSpan(span, nil)

	log.WithFields(logrus.Fields{
		"inputs":   len(files),
		"duration": time.Since(start).String(),
	}).Info("Operation completed")
}

// execute runs the operation, converting a panic into an error so its span is still ended
func execute(ctx context.Context, op Operation, req *Request, log *logrus.Entry) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Error("Operation panicked")
			err = Conversion(panicMessage, fmt.Errorf("panic: %v", r))
		}
	}()
	return op.Execute(ctx, req)
}

// intake parses the multipart body and stages the uploads the operation reads, in request order
func (p *Pipeline) intake(c *gin.Context, def Definition) ([]*staging.File, map[string]string, *OperationError) {
	noFiles := def.NoFilesMessage
	if noFiles == "" {
		noFiles = defaultNoFilesMessage
	}

	if p.maxRequestSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, p.maxRequestSize)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, Validation(tooLargeMessage, err)
		}
		return nil, nil, Validation(noFiles, err)
	}
	defer func() {
		_ = form.RemoveAll()
	}()

	headers := selectUploads(form, def.Input)
	if len(headers) == 0 {
		return nil, nil, Validation(noFiles, nil)
	}

	files, err := p.area.StageAll(headers)
	if err != nil {
		switch {
		case errors.Is(err, staging.ErrNoFiles):
			return nil, nil, Validation(noFiles, nil)
		case errors.Is(err, staging.ErrFileTooLarge):
			return nil, nil, Validation("File is too large.", err)
		case errors.Is(err, staging.ErrFileIsEmpty):
			return nil, nil, Validation("Uploaded file is empty.", err)
		default:
			return nil, nil, Conversion("Failed to store the upload.", err)
		}
	}

	params := make(map[string]string, len(form.Value))
	for name, values := range form.Value {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	return files, params, nil
}

// selectUploads returns the file parts an operation consumes
func selectUploads(form *multipart.Form, mode InputMode) []*multipart.FileHeader {
	if mode == InputSingle {
		if fhs := form.File[fieldSingle]; len(fhs) > 0 {
			return fhs[:1]
		}
		return nil
	}

	var fhs []*multipart.FileHeader
	fhs = append(fhs, form.File[fieldMultiple]...)
	fhs = append(fhs, form.File[fieldMultipleBracket]...)
	return fhs
}
