package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/mrsinham/annforge/internal/dicom"
	"github.com/mrsinham/annforge/internal/geojson"
	"github.com/mrsinham/annforge/internal/geometry"
	"github.com/mrsinham/annforge/internal/projection"
)

// maxValues bounds the measurement values printed per group.
const maxValues = 8

func runInspect(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("inspect takes exactly one file, got %d", len(args))
	}
	obj, err := dicom.ReadAnnotationObject(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s\n", obj.Path)
	fmt.Fprintf(stdout, "  Patient:    %s (%s)\n", obj.PatientName, obj.PatientID)
	fmt.Fprintf(stdout, "  Study:      %s\n", obj.StudyInstanceUID)
	fmt.Fprintf(stdout, "  Series:     %s #%d %q\n", obj.SeriesInstanceUID, obj.SeriesNumber, obj.SeriesDescription)
	fmt.Fprintf(stdout, "  Instance:   %s #%d\n", obj.SOPInstanceUID, obj.InstanceNumber)
	fmt.Fprintf(stdout, "  Label:      %s\n", obj.ContentLabel)
	if obj.Session != "" {
		fmt.Fprintf(stdout, "  Session:    %s\n", obj.Session)
	}
	fmt.Fprintf(stdout, "  References: %s\n", obj.ReferencedSOPInstanceUID)
	fmt.Fprintf(stdout, "  Coordinates: %s, %d group(s), %d annotation(s)\n\n",
		obj.Coordinates.DICOMValue(), len(obj.Groups), obj.Annotations())

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tLABEL\tTYPE\tGRAPHIC\tCOUNT\tCOLOR")
	for _, g := range obj.Groups {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t#%02x%02x%02x\n",
			g.Number, g.Label, g.Type.Meaning, g.Graphic, g.Len(), g.Color.R, g.Color.G, g.Color.B)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, g := range obj.Groups {
		if len(g.Measurements) == 0 {
			continue
		}
		fmt.Fprintf(stdout, "\nGroup %d measurements:\n", g.Number)
		for _, m := range g.Measurements {
			fmt.Fprintf(stdout, "  %s: %s\n", m.Name.Meaning, formatValues(m.Values))
		}
	}
	return nil
}

func formatValues(values []float64) string {
	parts := make([]string, 0, maxValues+1)
	for i, v := range values {
		if i == maxValues {
			parts = append(parts, fmt.Sprintf("... (%d more)", len(values)-maxValues))
			break
		}
		parts = append(parts, fmt.Sprintf("%g", v))
	}
	return strings.Join(parts, ", ")
}

func runGeoJSON(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("geojson", pflag.ContinueOnError)
	imageDir := fs.String("image-dir", "", "Re-encoded slide directory, required for 3D objects")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("geojson takes an input object and an output file, got %d argument(s)", fs.NArg())
	}
	in, out := fs.Arg(0), fs.Arg(1)

	obj, err := dicom.ReadAnnotationObject(in)
	if err != nil {
		return err
	}
	var frame *geometry.Frame
	if obj.Coordinates == projection.Scoord3D {
		if *imageDir == "" {
			return fmt.Errorf("%s uses 3D coordinates, --image-dir is required", in)
		}
		src, err := dicom.LoadSourceImage(*imageDir)
		if err != nil {
			return err
		}
		frame = src.Frame
	}

	fc, err := geojson.FromObject(obj, frame)
	if err != nil {
		return err
	}
	if out == "-" {
		return geojson.Write(stdout, fc)
	}
	if err := geojson.WriteFile(out, fc); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "✓ %d feature(s) written to %s\n", len(fc.Features), out)
	return nil
}

func runDicomdir(args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("dicomdir takes an output directory and at least one object")
	}
	written, err := dicom.ExportFileSet(args[0], args[1:])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "✓ File set with %d object(s) written to %s\n", len(written), args[0])
	return nil
}
