package source

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// Source yields the still images a video is assembled from.
type Source interface {
	PageCount() int
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// Open picks a PDFSource for .pdf files and an ImageSource otherwise.
func Open(path string) (Source, error) {
	if isPDF(path) {
		return NewPDFSource(path)
	}
	return NewImageSource(path)
}

// PDFSource renders document pages through MuPDF.
type PDFSource struct {
	doc  *fitz.Document
	path string
}

func NewPDFSource(path string) (*PDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &PDFSource{doc: doc, path: path}, nil
}

func (s *PDFSource) PageCount() int {
	return s.doc.NumPage()
}

func (s *PDFSource) GetPageDimensions(index int) (float64, float64, error) {
	rect, err := s.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage opens its own document handle; fitz documents are not safe for
// concurrent use.
func (s *PDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	doc, err := fitz.New(s.path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.ImageDPI(index, float64(dpi))
}

func (s *PDFSource) Close() error {
	return s.doc.Close()
}

// WritePages renders every page of src to PNG at the path chosen by pathFor and
// returns the written paths in page order. File-backed sources return their own
// paths without re-encoding.
func WritePages(src Source, dpi int, pathFor func(index int) string) ([]string, error) {
	if files, ok := src.(interface{ Paths() []string }); ok {
		return files.Paths(), nil
	}
	paths := make([]string, 0, src.PageCount())
	for i := 0; i < src.PageCount(); i++ {
		img, err := src.RenderPage(i, dpi)
		if err != nil {
			return paths, fmt.Errorf("render page %d: %w", i, err)
		}
		dest := pathFor(i)
		if err := writePNG(dest, img); err != nil {
			return paths, fmt.Errorf("write page %d: %w", i, err)
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
