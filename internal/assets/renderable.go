package assets

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path"
	"regexp"
	"strings"

	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

const maxLayerScan = 4 << 20

var primDef = regexp.MustCompile(`^def\s+(?:\w+\s+)?"([^"]+)"`)

// Renderable is a parsed model ready for display. Name holds the source URL
// and is the identity key consumers compare against.
type Renderable struct {
	Name            string   `json:"name"`
	RootLayer       string   `json:"rootLayer"`
	Layers          []string `json:"layers"`
	Textures        []string `json:"textures"`
	Prims           []string `json:"prims,omitempty"`
	InputTarget     bool     `json:"inputTarget"`
	CollisionShapes bool     `json:"collisionShapes"`
}

// ParseRenderable opens a local USDZ file. Failures are ASSET_ERRORs.
func ParseRenderable(localPath, sourceURL string) (*Renderable, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "open model file")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "stat model file")
	}

	pkg, err := openPackage(f, info.Size())
	if err != nil {
		return nil, err
	}

	r := &Renderable{
		Name:            sourceURL,
		RootLayer:       pkg.rootLayer,
		Layers:          pkg.layers,
		Textures:        pkg.textures,
		InputTarget:     true,
		CollisionShapes: true,
	}
	if strings.EqualFold(path.Ext(pkg.rootLayer), ".usda") {
		text, err := pkg.read(pkg.rootLayer, maxLayerScan)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "read root layer")
		}
		r.Prims = topLevelPrims(text)
	}
	return r, nil
}

// RenderableLoader degrades parse failures to an absent renderable.
type RenderableLoader struct {
	logg *logger.Logger
}

func NewRenderableLoader(logg *logger.Logger) *RenderableLoader {
	if logg == nil {
		logg = logger.Nop()
	}
	return &RenderableLoader{logg: logg}
}

// LoadRenderable returns nil when the file cannot be parsed.
func (l *RenderableLoader) LoadRenderable(ctx context.Context, localPath, sourceURL string) *Renderable {
	r, err := ParseRenderable(localPath, sourceURL)
	if err != nil {
		l.logg.WarnErr(l.logg.WithField(ctx, "model_file", localPath), "model could not be loaded", err)
		return nil
	}
	return r
}

func topLevelPrims(text []byte) []string {
	var prims []string
	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := primDef.FindSubmatch(scanner.Bytes()); m != nil {
			prims = append(prims, string(m[1]))
		}
	}
	return prims
}
