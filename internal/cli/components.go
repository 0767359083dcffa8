package cli

import (
	"strings"
	"sync"
	"time"

	"github.com/dandantas/grabber/internal/clock"
	"github.com/dandantas/grabber/internal/config"
	"github.com/dandantas/grabber/internal/render"
	"github.com/dandantas/grabber/internal/service"
	"github.com/dandantas/grabber/internal/session"
	"github.com/dandantas/grabber/internal/upload"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func webDriverConfig(cfg *config.Config) session.WebDriverConfig {
	return session.WebDriverConfig{
		URL:         cfg.WebDriver.URL,
		Browser:     cfg.WebDriver.Browser,
		Headless:    cfg.WebDriver.Headless,
		Binary:      cfg.WebDriver.Binary,
		DownloadDir: cfg.General.DownloadDir,
		Timeout:     seconds(cfg.WebDriver.TimeoutSec),
		Trace:       strings.EqualFold(cfg.General.LogLevel, "debug"),
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	w := cfg.WebSDR
	return session.Config{
		Endpoint: w.URL,
		Marker:   w.InTitle,
		Tuning: session.Tuning{
			BaseFreqHz: w.BaseFreqHz,
			Band:       w.Band,
			Lo:         w.Lo,
			Hi:         w.Hi,
			Mode:       w.Mode,
		},
		DownloadLabels: w.DownloadLabels,
		DownloadDir:    cfg.General.DownloadDir,
		SettleTime:     seconds(w.SettleSec),
	}
}

func recorderFactory(cfg *config.Config, remote session.Remote) service.RecorderFactory {
	sessCfg := sessionConfig(cfg)
	return func(gate sync.Locker) service.Recorder {
		return session.NewDriver(remote, sessCfg, clock.Real{}, gate)
	}
}

func spectrogramConfig(cfg *config.Config) render.Config {
	s := cfg.Spectrogram
	return render.Config{
		Colormap:   s.Colormap,
		NFFT:       s.NFFT,
		NOverlap:   s.NOverlap,
		VMin:       float64(s.VMin),
		VMax:       float64(s.VMax),
		MinFreqHz:  s.MinFreqHz,
		MaxFreqHz:  s.MaxFreqHz,
		BaseFreqHz: cfg.WebSDR.BaseFreqHz,
		Title:      s.Title,
		Subtitle:   s.Subtitle,
		Width:      s.Width,
		Height:     s.Height,
	}
}

// newUploader builds one destination per configured section.
func newUploader(cfg *config.Config) *upload.Multi {
	var dests []upload.Destination
	if s := cfg.SFTP; s != nil && s.Host != "" {
		dests = append(dests, upload.NewSFTP(upload.SFTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password,
			DestPath: s.DestPath,
			Timeout:  seconds(s.TimeoutSec),
		}))
	}
	if g := cfg.GridFS; g != nil && g.URI != "" {
		dests = append(dests, upload.NewGridFS(upload.GridFSConfig{
			URI:      g.URI,
			Database: g.Database,
			Bucket:   g.Bucket,
			Timeout:  seconds(g.TimeoutSec),
		}))
	}
	return upload.NewMulti(dests...)
}

func orchestratorConfig(cfg *config.Config) service.OrchestratorConfig {
	return service.OrchestratorConfig{
		DownloadDir:    cfg.General.DownloadDir,
		MaxFileAgeDays: cfg.General.MaxFileAgeDays,
		JitterMin:      seconds(cfg.Schedule.JitterMinSec),
		JitterMax:      seconds(cfg.Schedule.JitterMaxSec),
		Workers:        cfg.General.WorkerPoolSize,
		QueueSize:      cfg.General.WorkerPoolSize,
		CheckConfig:    cfg.RequireRunKeys,
	}
}
