package logger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoggerInit(t *testing.T) {
	Convey("Given the logger is initialized", t, func() {
		So(Init(), ShouldBeNil)

		Convey("Then Get returns a logger", func() {
			So(Get(), ShouldNotBeNil)
			So(Sync(), ShouldBeNil)
		})

		Convey("Then an unknown level is rejected", func() {
			So(Init(WithLevel("loud")), ShouldNotBeNil)
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		out := &syncBuffer{}
		So(Init(WithLevel("info"), WithOutput(out)), ShouldBeNil)
		ctx := context.Background()

		Convey("When info is logged with fields", func() {
			Named("refresh").Info(ctx, "done", String("studentID", "s1"), Int("ok", 4), Error(errors.New("boom")))

			Convey("Then the message, name and fields are written", func() {
				s := out.String()
				So(s, ShouldContainSubstring, "done")
				So(s, ShouldContainSubstring, "refresh")
				So(s, ShouldContainSubstring, "s1")
				So(s, ShouldContainSubstring, "boom")
			})
		})

		Convey("When debug is logged at info level", func() {
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(out.String(), ShouldNotContainSubstring, "hidden")
			})
		})

		Convey("When the level is lowered", func() {
			So(SetLevelString("DEBUG"), ShouldBeNil)
			Get().Debug(ctx, "visible")

			Convey("Then debug lines appear", func() {
				So(out.String(), ShouldContainSubstring, "visible")
			})
		})
	})
}

func TestLoggerFile(t *testing.T) {
	Convey("Given a logger with a file sink", t, func() {
		path := filepath.Join(t.TempDir(), "codesync.log")
		So(Init(WithFile(path), WithOutput(&syncBuffer{})), ShouldBeNil)

		Get().Warn(context.Background(), "to file")
		_ = Sync()

		Convey("Then the file contains a JSON line", func() {
			data, err := readFile(path)
			So(err, ShouldBeNil)
			So(strings.Contains(data, `"msg":"to file"`), ShouldBeTrue)
		})
	})
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}
