package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrsinham/annforge/internal/config"
	"github.com/mrsinham/annforge/internal/dicom/dicomtest"
)

var fixedNow = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

const (
	roiHeader      = "id,slide_id,x_in_slide,y_in_slide,width,height\n"
	cellHeader     = "cell_id,rocellboxing_id,x_in_slide,y_in_slide,cell_width,cell_height,all_original_annotations,original_consensus_label,slide_id\n"
	geometryHeader = "slide_id,width,height,bounds_x,bounds_y\n"
)

// fixture is a batch input tree in a temporary directory.
type fixture struct {
	dir string
	cfg config.Config
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Inputs = config.Inputs{
		ROITable:      filepath.Join(dir, "rois.csv"),
		CellTable:     filepath.Join(dir, "cells.csv"),
		GeometryTable: filepath.Join(dir, "geometry.csv"),
		ImageRoot:     filepath.Join(dir, "images"),
	}
	cfg.OutputDir = filepath.Join(dir, "out")
	return &fixture{dir: dir, cfg: cfg}
}

// addImage writes the base level of a re-encoded slide.
func (f *fixture) addImage(t testing.TB, slide string, columns, rows int) {
	t.Helper()
	dicomtest.WriteSlide(t, filepath.Join(f.cfg.Inputs.ImageRoot, slide), dicomtest.Slide{
		Columns:   columns,
		Rows:      rows,
		WithFrame: true,
	})
}

func (f *fixture) writeTables(t testing.TB, rois, cells, geometries string) {
	t.Helper()
	for path, content := range map[string]string{
		f.cfg.Inputs.ROITable:      roiHeader + rois,
		f.cfg.Inputs.CellTable:     cellHeader + cells,
		f.cfg.Inputs.GeometryTable: geometryHeader + geometries,
	} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

// standardSlide sets up slide_1_bm: one ROI, three cells annotated in two
// sessions and a crop origin of (100, 200).
func (f *fixture) standardSlide(t testing.TB) {
	t.Helper()
	f.addImage(t, "slide_1_bm", 1000, 800)
	f.writeTables(t,
		"7,slide_1_bm,150,260,400,300\n",
		`1,7,160,270,20,20,"lymphocyte,lymphocyte",lymphocyte,slide_1_bm
2,7,200,300,20,20,"technically_unfit,lymphocyte",technically_unfit,slide_1_bm
3,,700,700,30,30,technically_unfit,technically_unfit,slide_1_bm
`,
		"slide_1_bm,1000,800,100,200\n")
}
