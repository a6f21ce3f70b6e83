package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"epdtext/internal/framebuffer"
	"epdtext/internal/layout"
	"epdtext/internal/transport"
)

// events is the shared call log of the fake panel and source.
type events []string

type fakePanel struct {
	log   *events
	fail  map[string]error
	frame *framebuffer.Buffer
}

func (p *fakePanel) call(name string) error {
	*p.log = append(*p.log, name)
	return p.fail[name]
}

func (p *fakePanel) Initialize() error { return p.call("initialize") }

func (p *fakePanel) Wake() error { return p.call("wake") }

func (p *fakePanel) ClearFrame() error { return p.call("clear") }

func (p *fakePanel) DisplayFrame() error { return p.call("display") }

func (p *fakePanel) Sleep() error { return p.call("sleep") }

func (p *fakePanel) UpdateFrame(buf *framebuffer.Buffer) error {
	p.frame = framebuffer.New(buf.NativeSize().X, buf.NativeSize().Y, buf.Rotation())
	copyBuffer(p.frame, buf)
	return p.call("update")
}

func copyBuffer(dst, src *framebuffer.Buffer) {
	r := src.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetBit(x, y, src.BitAt(x, y))
		}
	}
}

type fakeSource struct {
	log    *events
	chunks []transport.Chunk
	acks   []string
	// drained is called once the scripted chunks are used up.
	drained func()
}

func (s *fakeSource) Poll() (transport.Chunk, bool) {
	if len(s.chunks) == 0 {
		if s.drained != nil {
			s.drained()
		}
		return transport.Chunk{}, false
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	*s.log = append(*s.log, "poll")
	return c, true
}

func (s *fakeSource) Acknowledge(msg []byte) error {
	*s.log = append(*s.log, "ack")
	s.acks = append(s.acks, string(msg))
	return errors.New("ack is best effort")
}

func newRenderer(t *testing.T) *layout.Renderer {
	t.Helper()
	f, err := layout.LoadFont(layout.FaceBasic, 0)
	if err != nil {
		t.Fatal(err)
	}
	r, err := layout.NewRenderer(f, f)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func newBuffer() *framebuffer.Buffer {
	return framebuffer.New(128, 296, framebuffer.Rotate90)
}

// expected renders payload on a fresh buffer.
func expected(t *testing.T, payload string) *framebuffer.Buffer {
	b := newBuffer()
	newRenderer(t).Draw(b, layout.Layout(payload, layout.DefaultMetrics))
	return b
}

type harness struct {
	log   events
	panel *fakePanel
	src   *fakeSource
	r     *Refresher
	buf   *framebuffer.Buffer
}

func newHarness(t *testing.T, chunks []transport.Chunk, opts Options) *harness {
	h := &harness{buf: newBuffer()}
	h.panel = &fakePanel{log: &h.log}
	h.src = &fakeSource{log: &h.log, chunks: chunks}
	if opts.Ack == nil {
		opts.Ack = []byte("ok !\n")
	}
	opts.Metrics = layout.DefaultMetrics
	opts.PollInterval = time.Millisecond
	h.r = New(h.panel, h.src, h.buf, newRenderer(t), opts)
	return h
}

// run runs the loop until the source is drained.
func (h *harness) run(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.src.drained = cancel

	done := make(chan error, 1)
	go func() { done <- h.r.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish")
		return nil
	}
}

func text(s string) transport.Chunk {
	return transport.Chunk{Data: []byte(s)}
}

var cycle = []string{"wake", "clear", "update", "display", "sleep"}

func seq(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestHelloWorld(t *testing.T) {
	h := newHarness(t, []transport.Chunk{text("Hello\nWorld")}, Options{Once: true})

	if err := h.run(t); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	want := seq([]string{"initialize", "poll", "ack"}, cycle)
	if diff := cmp.Diff([]string(h.log), want); diff != "" {
		t.Errorf("calls difference (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(h.src.acks, []string{"ok !\n"}); diff != "" {
		t.Errorf("acks difference (-got +want):\n%s", diff)
	}
	if !h.panel.frame.Equal(expected(t, "Hello\nWorld")) {
		t.Error("frame sent to the panel does not match the laid out text")
	}
	st := h.r.Status()
	if st.Refreshes != 1 || st.LastText != "Hello\nWorld" || st.LastRefresh.IsZero() {
		t.Errorf("Status() = %+v", st)
	}
}

func TestInvalidUTF8Dropped(t *testing.T) {
	h := newHarness(t, []transport.Chunk{
		{Data: []byte{0xff, 0xfe, 'a'}},
		text("fine"),
	}, Options{})

	if err := h.run(t); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	// The bad chunk is acknowledged but never reaches the panel.
	want := seq([]string{"initialize", "poll", "ack", "poll", "ack"}, cycle)
	if diff := cmp.Diff([]string(h.log), want); diff != "" {
		t.Errorf("calls difference (-got +want):\n%s", diff)
	}
	st := h.r.Status()
	if st.Dropped != 1 || st.Refreshes != 1 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestInvalidUTF8Once(t *testing.T) {
	h := newHarness(t, []transport.Chunk{{Data: []byte{0xc3}}}, Options{Once: true})

	if err := h.run(t); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Run() = %v, want ErrInvalidPayload", err)
	}
}

func TestEmptyPayload(t *testing.T) {
	h := newHarness(t, []transport.Chunk{text("")}, Options{Once: true})

	if err := h.run(t); err != nil {
		t.Fatal(err)
	}
	if !h.panel.frame.Equal(newBuffer()) {
		t.Error("empty payload left ink in the frame")
	}
}

func TestFreshBufferEachRefresh(t *testing.T) {
	h := newHarness(t, []transport.Chunk{
		text("WWWWWWWWWWWWWWWW\nWWWWWWWWWWWW\nWWWW"),
		text("a"),
	}, Options{})

	if err := h.run(t); err != nil {
		t.Fatal(err)
	}
	if !h.panel.frame.Equal(expected(t, "a")) {
		t.Error("second frame still carries pixels of the first")
	}
	if !h.buf.Equal(expected(t, "a")) {
		t.Error("framebuffer does not hold the last frame")
	}
}

func TestRedraw(t *testing.T) {
	var frames int
	h := newHarness(t, []transport.Chunk{
		{Redraw: true},
		text("again"),
		{Redraw: true},
	}, Options{OnFrame: func(*framebuffer.Buffer) { frames++ }})

	if err := h.run(t); err != nil {
		t.Fatal(err)
	}

	// A redraw before anything was shown is skipped; a later one repeats the
	// payload without acknowledging.
	want := seq([]string{"initialize", "poll", "poll", "ack"}, cycle, []string{"poll"}, cycle)
	if diff := cmp.Diff([]string(h.log), want); diff != "" {
		t.Errorf("calls difference (-got +want):\n%s", diff)
	}
	if frames != 2 {
		t.Errorf("frame hook called %d times, want 2", frames)
	}
	if !h.panel.frame.Equal(expected(t, "again")) {
		t.Error("redraw frame differs")
	}
}

func TestPanelFailureIsFatal(t *testing.T) {
	boom := errors.New("epd: display frame: busy timeout")
	h := newHarness(t, []transport.Chunk{text("one"), text("two")}, Options{})
	h.panel.fail = map[string]error{"display": boom}

	err := h.run(t)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want %v", err, boom)
	}
	// No retry and no forced sleep after the failure.
	want := []string{"initialize", "poll", "ack", "wake", "clear", "update", "display"}
	if diff := cmp.Diff([]string(h.log), want); diff != "" {
		t.Errorf("calls difference (-got +want):\n%s", diff)
	}
	if h.r.Status().LastError == "" {
		t.Error("Status() has no error")
	}
}

func TestInitializeFailure(t *testing.T) {
	boom := errors.New("epd: initialize: controller not responding")
	h := newHarness(t, []transport.Chunk{text("x")}, Options{})
	h.panel.fail = map[string]error{"initialize": boom}

	if err := h.run(t); !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want %v", err, boom)
	}
	if diff := cmp.Diff([]string(h.log), []string{"initialize"}); diff != "" {
		t.Errorf("calls difference (-got +want):\n%s", diff)
	}
}

func TestRunStaticIdles(t *testing.T) {
	var log events
	panel := &fakePanel{log: &log}
	r := New(panel, transport.NewStatic("ok"), newBuffer(), newRenderer(t), Options{
		Ack:          []byte("ok !\n"),
		Metrics:      layout.DefaultMetrics,
		PollInterval: time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	// One refresh, then idle until cancelled.
	if diff := cmp.Diff([]string(log), seq([]string{"initialize"}, cycle)); diff != "" {
		t.Errorf("calls difference (-got +want):\n%s", diff)
	}
}
