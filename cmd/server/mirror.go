package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/DeltaNedas/routorio-old/internal/persistence/objstore"
)

// openMirror returns nil when ROUTORIO_MIRROR_BUCKET is unset.
func openMirror(dataDir string, logger *log.Logger) (*objstore.Mirror, error) {
	bucket := strings.TrimSpace(os.Getenv("ROUTORIO_MIRROR_BUCKET"))
	if bucket == "" {
		return nil, nil
	}
	c, err := objstore.New(objstore.Config{
		Endpoint:        os.Getenv("ROUTORIO_MIRROR_ENDPOINT"),
		Bucket:          bucket,
		Region:          os.Getenv("ROUTORIO_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("ROUTORIO_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("ROUTORIO_MIRROR_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	return objstore.NewMirror(c, objstore.MirrorConfig{
		DataDir: dataDir,
		Prefix:  os.Getenv("ROUTORIO_MIRROR_PREFIX"),
		Workers: envInt("ROUTORIO_MIRROR_WORKERS", 1),
		Queue:   envInt("ROUTORIO_MIRROR_QUEUE", 256),
		Logger:  logger,
	}), nil
}
