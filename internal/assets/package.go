package assets

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

var (
	layerExtensions = map[string]bool{".usda": true, ".usdc": true, ".usd": true}
	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}
	previewNames    = map[string]bool{"thumbnail": true, "preview": true}
)

// usdzPackage is the parsed table of contents of a USDZ archive. The first
// entry of a package is its root layer.
type usdzPackage struct {
	rootLayer string
	layers    []string
	textures  []string
	files     map[string]*zip.File
}

func openPackage(r io.ReaderAt, size int64) (*usdzPackage, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAsset, err, "not a usdz package")
	}
	if len(zr.File) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeAsset, "usdz package is empty")
	}

	pkg := &usdzPackage{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		pkg.files[f.Name] = f
		ext := strings.ToLower(path.Ext(f.Name))
		switch {
		case layerExtensions[ext]:
			pkg.layers = append(pkg.layers, f.Name)
		case imageExtensions[ext]:
			pkg.textures = append(pkg.textures, f.Name)
		}
	}

	root := zr.File[0].Name
	if !layerExtensions[strings.ToLower(path.Ext(root))] {
		return nil, pkgerrors.New(pkgerrors.CodeAsset, fmt.Sprintf("usdz root entry %q is not a usd layer", root))
	}
	pkg.rootLayer = root
	return pkg, nil
}

// previewImage picks a dedicated thumbnail/preview entry, else the largest texture.
func (p *usdzPackage) previewImage() (*zip.File, bool) {
	candidates := make([]*zip.File, 0, len(p.textures))
	for _, name := range p.textures {
		f := p.files[name]
		base := strings.ToLower(strings.TrimSuffix(path.Base(name), path.Ext(name)))
		if previewNames[base] {
			return f, true
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].UncompressedSize64 > candidates[j].UncompressedSize64
	})
	return candidates[0], true
}

func (p *usdzPackage) read(name string, limit int64) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("entry %s missing", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit))
}
