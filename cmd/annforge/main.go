package main

import (
	"fmt"
	"io"
	"os"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := "convert"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "convert":
		err = runConvert(args, stdout, stderr)
	case "inspect":
		err = runInspect(args, stdout)
	case "geojson":
		err = runGeoJSON(args, stdout)
	case "dicomdir":
		err = runDicomdir(args, stdout)
	case "version":
		fmt.Fprintf(stdout, "annforge %s\n", version)
	case "help":
		printHelp(stdout)
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", cmd)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case err == errHelp:
		return 0
	case err == errFailed:
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  annforge [convert] --config <FILE> [options]")
	fmt.Fprintln(w, "  annforge inspect <file.dcm>")
	fmt.Fprintln(w, "  annforge geojson <in.dcm> <out.geojson>")
	fmt.Fprintln(w, "  annforge dicomdir <out-dir> <file.dcm>...")
	fmt.Fprintln(w, "  annforge version")
	fmt.Fprintln(w, "\nRun 'annforge help' for the full option list.")
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "annforge")
	fmt.Fprintln(w, "========")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Convert whole-slide cell and ROI annotations into DICOM Microscopy Bulk")
	fmt.Fprintln(w, "Simple Annotations objects referencing the re-encoded DICOM slides.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  convert (default)     Convert the annotation tables of a batch of slides")
	fmt.Fprintln(w, "  inspect <file>        Print the groups and measurements of an annotation object")
	fmt.Fprintln(w, "  geojson <in> <out>    Export an annotation object as a GeoJSON FeatureCollection")
	fmt.Fprintln(w, "  dicomdir <dir> <f>... Copy objects into a DICOM file set with a DICOMDIR")
	fmt.Fprintln(w, "  version               Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input options:")
	fmt.Fprintln(w, "  --config <FILE>          YAML configuration; flags override its values")
	fmt.Fprintln(w, "  --roi-table <FILE>       ROI table (CSV)")
	fmt.Fprintln(w, "  --cell-table <FILE>      Cell table (CSV)")
	fmt.Fprintln(w, "  --geometry-table <FILE>  Source slide geometry table (CSV)")
	fmt.Fprintln(w, "  --image-root <DIR>       Directory holding one re-encoded slide directory per slide id")
	fmt.Fprintln(w, "  --ontology <FILE>        Label to code table (YAML, default: built in)")
	fmt.Fprintln(w, "  --slides <LIST>          Comma-separated slide ids (default: every slide)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Encoding options:")
	fmt.Fprintln(w, "  --graphic-type <T>       RECTANGLE or POINT (default: RECTANGLE)")
	fmt.Fprintln(w, "  --coordinate-type <T>    2D (SCOORD) or 3D (SCOORD3D) (default: 2D)")
	fmt.Fprintln(w, "  --units <LIST>           rois,sessions,consensus (or 'all', the default)")
	fmt.Fprintln(w, "  --namespace <NAME>       Seed of the deterministic series and instance UIDs (default: bmdeep)")
	fmt.Fprintln(w, "  --series-number <N>      Series number of every object (default: 33)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output options:")
	fmt.Fprintln(w, "  --output <DIR>           Output directory, one sub-directory per slide")
	fmt.Fprintln(w, "  --error-log <FILE>       Error log (default: <output>/conversion_error_log.csv)")
	fmt.Fprintln(w, "  --preview                Write a PNG quick look next to every object")
	fmt.Fprintln(w, "  --fileset-dir <DIR>      Also export the written objects as a DICOM file set")
	fmt.Fprintln(w, "  --publish <DRIVER>       Upload every object: s3 or gcs")
	fmt.Fprintln(w, "  --bucket <NAME>          Destination bucket")
	fmt.Fprintln(w, "  --prefix <PREFIX>        Key prefix inside the bucket")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run options:")
	fmt.Fprintln(w, "  --workers <N>            Slides converted in parallel (default: 1)")
	fmt.Fprintln(w, "  --ledger <FILE>          SQLite ledger of completed units")
	fmt.Fprintln(w, "  --resume                 Skip units already recorded in the ledger")
	fmt.Fprintln(w, "  --metrics-file <FILE>    Write run metrics in Prometheus text format")
	fmt.Fprintln(w, "  --save-config <FILE>     Save the effective configuration to YAML")
	fmt.Fprintln(w, "  --log-mode <MODE>        dev (console) or prod (JSON) (default: dev)")
	fmt.Fprintln(w, "  -v, --verbose            Enable debug logging")
	fmt.Fprintln(w, "  -q, --quiet              Suppress progress output")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  # Convert every slide described by a config file")
	fmt.Fprintln(w, "  annforge --config bmdeep.yaml")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Convert two slides as points in 3D coordinates")
	fmt.Fprintln(w, "  annforge --config bmdeep.yaml --slides slide_1_bm,slide_2_bm --graphic-type POINT --coordinate-type 3D")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Resume an interrupted batch with 4 workers")
	fmt.Fprintln(w, "  annforge --config bmdeep.yaml --ledger out/ledger.db --resume --workers 4")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Only the consensus objects, uploaded to S3")
	fmt.Fprintln(w, "  annforge --config bmdeep.yaml --units consensus --publish s3 --bucket annotations")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit status:")
	fmt.Fprintln(w, "  0 when every unit converted, 1 when any unit, slide or record failed.")
	fmt.Fprintln(w, "  Failures are listed in the error log.")
}
