// Command tahti-engine is a mock audio engine for development and
// integration testing. It serves the command channel over HTTP, streams
// playback snapshots over a websocket at a deliberately irregular cadence,
// and keeps just enough transport state to make the monitor's clock and
// optimistic edits observable.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tahtiseq/tahti"
	"github.com/tahtiseq/tahti/version"
)

var (
	addr     = flag.String("addr", ":3004", "listen address")
	songFile = flag.String("song", "", "yaml song `file` to serve instead of the demo song")
	debug    = flag.Bool("debug", false, "log at debug level")
)

func main() {
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer logger.Sync()

	song := demoSong()
	if *songFile != "" {
		data, err := os.ReadFile(*songFile)
		if err != nil {
			logger.Fatal("reading song", zap.Error(err))
		}
		if err := yaml.Unmarshal(data, &song); err != nil {
			logger.Fatal("parsing song", zap.Error(err))
		}
	}

	engine := newMockEngine(song, logger)
	go engine.runBroadcaster()

	r := engine.router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	logger.Info("engine listening",
		zap.String("version", version.VersionOrHash),
		zap.String("addr", *addr),
	)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// demoSong is the arrangement served when no song file is given: two tracks
// of staggered clips, enough material to drag around and watch replicate.
func demoSong() tahti.Song {
	return tahti.Song{
		TempoBPM: 120,
		Tracks: []tahti.Track{
			{
				ID:   "drums",
				Name: "Drums",
				Clips: []tahti.Clip{
					{ID: "drums-a", Name: "Beat A", Start: 0, Duration: 8},
					{ID: "drums-b", Name: "Beat B", Start: 8, Duration: 8},
				},
			},
			{
				ID:   "bass",
				Name: "Bass",
				Clips: []tahti.Clip{
					{ID: "bass-a", Name: "Line A", Start: 4, Duration: 12},
				},
			},
		},
	}
}
