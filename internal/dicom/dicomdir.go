package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/annforge/internal/util"
)

const mediaStorageDirectoryStorage = "1.2.840.10008.1.3.10"

// Record levels of the DICOMDIR entity tree.
const (
	levelPatient = iota
	levelStudy
	levelSeries
	levelInstance
)

var recordLevels = map[string]int{
	"PATIENT":    levelPatient,
	"STUDY":      levelStudy,
	"SERIES":     levelSeries,
	"IMAGE":      levelInstance,
	"ANNOTATION": levelInstance,
}

// fileSetEntry holds the attributes a DICOMDIR indexes for one file.
type fileSetEntry struct {
	path     string
	elements []*dicom.Element
	instance int
}

func (e *fileSetEntry) value(t tag.Tag) string {
	return stringValue(e.elements, t)
}

// ExportFileSet copies files into a PT*/ST*/SE*/IM* hierarchy under
// outputDir and indexes them in a DICOMDIR. Annotation objects get ANNOTATION
// records, everything else IMAGE records. It returns the copied paths.
func ExportFileSet(outputDir string, files []string) ([]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to export")
	}

	entries := make([]*fileSetEntry, 0, len(files))
	for _, path := range files {
		ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		e := &fileSetEntry{path: path, elements: ds.Elements}
		e.instance, _ = strconv.Atoi(e.value(tag.InstanceNumber))
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		for _, t := range []tag.Tag{tag.PatientID, tag.StudyInstanceUID, tag.SeriesInstanceUID} {
			if va, vb := a.value(t), b.value(t); va != vb {
				return va < vb
			}
		}
		return a.instance < b.instance
	})

	var (
		records [][]*dicom.Element
		copied  []string
		dir     string
		pt, st  int
		se, im  int
		prev    *fileSetEntry
	)
	for _, e := range entries {
		newPatient := prev == nil || e.value(tag.PatientID) != prev.value(tag.PatientID)
		newStudy := newPatient || e.value(tag.StudyInstanceUID) != prev.value(tag.StudyInstanceUID)
		newSeries := newStudy || e.value(tag.SeriesInstanceUID) != prev.value(tag.SeriesInstanceUID)
		prev = e

		if newPatient {
			pt, st = pt+1, 0
			records = append(records, directoryRecord("PATIENT", e.keys(tag.PatientID, tag.PatientName)...))
		}
		if newStudy {
			st, se = st+1, 0
			records = append(records, directoryRecord("STUDY", e.keys(tag.StudyInstanceUID, tag.StudyID, tag.StudyDate, tag.StudyTime)...))
		}
		if newSeries {
			se, im = se+1, 0
			records = append(records, directoryRecord("SERIES", e.keys(tag.Modality, tag.SeriesInstanceUID, tag.SeriesNumber)...))
			dir = fmt.Sprintf("PT%06d/ST%06d/SE%06d", pt-1, st-1, se-1)
			if err := os.MkdirAll(filepath.Join(outputDir, filepath.FromSlash(dir)), 0o755); err != nil {
				return nil, fmt.Errorf("create series directory: %w", err)
			}
		}

		im++
		fileID := fmt.Sprintf("%s/IM%06d", dir, im)
		dest := filepath.Join(outputDir, filepath.FromSlash(fileID))
		if err := copyFile(e.path, dest); err != nil {
			return nil, fmt.Errorf("copy %s to %s: %w", e.path, dest, err)
		}
		copied = append(copied, dest)
		records = append(records, e.instanceRecord(fileID))
	}

	if err := writeDICOMDIR(outputDir, records); err != nil {
		return nil, fmt.Errorf("create DICOMDIR file: %w", err)
	}
	return copied, nil
}

// keys copies the string attributes ts of the entry into record keys.
func (e *fileSetEntry) keys(ts ...tag.Tag) []*dicom.Element {
	elements := make([]*dicom.Element, len(ts))
	for i, t := range ts {
		elements[i] = mustNewElement(t, []string{e.value(t)})
	}
	return elements
}

func (e *fileSetEntry) instanceRecord(fileID string) []*dicom.Element {
	recordType := "IMAGE"
	keys := []*dicom.Element{
		mustNewElement(tag.ReferencedFileID, strings.Split(fileID, "/")),
		mustNewElement(tag.ReferencedSOPClassUIDInFile, []string{e.value(tag.SOPClassUID)}),
		mustNewElement(tag.ReferencedSOPInstanceUIDInFile, []string{e.value(tag.SOPInstanceUID)}),
		mustNewElement(tag.ReferencedTransferSyntaxUIDInFile, []string{explicitVRLittleEndian}),
	}
	if e.value(tag.SOPClassUID) == MicroscopyBulkSimpleAnnotationsStorage {
		recordType = "ANNOTATION"
		keys = append(keys, e.keys(tag.ContentDate, tag.ContentTime)...)
	}
	keys = append(keys, mustNewElement(tag.InstanceNumber, []string{intToIS(e.instance)}))
	return directoryRecord(recordType, keys...)
}

// directoryRecord builds a record whose offsets are patched after writing.
func directoryRecord(recordType string, keys ...*dicom.Element) []*dicom.Element {
	elements := []*dicom.Element{
		mustNewElement(tag.OffsetOfTheNextDirectoryRecord, []int{0}),
		mustNewElement(tag.RecordInUseFlag, []int{0xFFFF}),
		mustNewElement(tag.OffsetOfReferencedLowerLevelDirectoryEntity, []int{0}),
		mustNewElement(tag.DirectoryRecordType, []string{recordType}),
	}
	elements = append(elements, keys...)
	sortElements(elements)
	return elements
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// fileSetID derives a CS file-set ID from the directory name.
func fileSetID(outputDir string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		default:
			return '_'
		}
	}, filepath.Base(outputDir))
	if len(id) > 16 {
		id = id[:16]
	}
	return id
}

// writeDICOMDIR writes the DICOMDIR with every offset at 0, then patches them
// with the byte positions of the records.
func writeDICOMDIR(outputDir string, records [][]*dicom.Element) error {
	path := filepath.Join(outputDir, "DICOMDIR")
	levels := make([]int, len(records))
	for i, r := range records {
		level, ok := recordLevels[stringValue(r, tag.DirectoryRecordType)]
		if !ok {
			return fmt.Errorf("record %d: unknown record type", i)
		}
		levels[i] = level
	}

	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{mediaStorageDirectoryStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{util.NewUID()}),
		mustNewElement(tag.ImplementationClassUID, []string{implementationClassUID}),
		mustNewElement(tag.FileSetID, []string{fileSetID(outputDir)}),
		mustNewElement(tag.OffsetOfTheFirstDirectoryRecordOfTheRootDirectoryEntity, []int{0}),
		mustNewElement(tag.OffsetOfTheLastDirectoryRecordOfTheRootDirectoryEntity, []int{0}),
		mustNewElement(tag.FileSetConsistencyFlag, []int{0}),
		mustNewElement(tag.DirectoryRecordSequence, records),
	}}
	if err := writeDatasetToFile(path, ds); err != nil {
		return fmt.Errorf("write DICOMDIR: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := patchOffsets(data, levels); err != nil {
		return fmt.Errorf("patch DICOMDIR offsets: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// patchOffsets fills the root, next and lower offsets of an encoded DICOMDIR.
// Records hold no nested sequences, so the n-th item after the preamble is
// the n-th record.
func patchOffsets(data []byte, levels []int) error {
	starts := itemStarts(data)
	if len(starts) != len(levels) {
		return fmt.Errorf("found %d records, wrote %d", len(starts), len(levels))
	}
	next, lower := linkRecords(levels, starts)

	var first, last uint32
	for i, level := range levels {
		if level == levelPatient {
			if first == 0 {
				first = starts[i]
			}
			last = starts[i]
		}
	}
	header := int(starts[0])
	if err := putUL(data[:header], tag.OffsetOfTheFirstDirectoryRecordOfTheRootDirectoryEntity, first); err != nil {
		return err
	}
	if err := putUL(data[:header], tag.OffsetOfTheLastDirectoryRecordOfTheRootDirectoryEntity, last); err != nil {
		return err
	}

	for i, start := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = int(starts[i+1])
		}
		record := data[start:end]
		if err := putUL(record, tag.OffsetOfTheNextDirectoryRecord, next[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := putUL(record, tag.OffsetOfReferencedLowerLevelDirectoryEntity, lower[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// itemStarts returns the byte offset of every item tag (FFFE,E000).
func itemStarts(data []byte) []uint32 {
	item := []byte{0xFE, 0xFF, 0x00, 0xE0}
	var starts []uint32
	for i := 132; i+4 <= len(data); i++ {
		if bytes.Equal(data[i:i+4], item) {
			starts = append(starts, uint32(i))
		}
	}
	return starts
}

// linkRecords returns, for each record in depth-first order, the offset of
// its next sibling and of its first child (0 when none).
func linkRecords(levels []int, starts []uint32) (next, lower []uint32) {
	next = make([]uint32, len(levels))
	lower = make([]uint32, len(levels))
	open := []int{-1, -1, -1, -1}
	for i, level := range levels {
		if prev := open[level]; prev >= 0 {
			next[prev] = starts[i]
		}
		if level > 0 {
			if parent := open[level-1]; parent >= 0 && lower[parent] == 0 {
				lower[parent] = starts[i]
			}
		}
		open[level] = i
		for deeper := level + 1; deeper < len(open); deeper++ {
			open[deeper] = -1
		}
	}
	return next, lower
}

// putUL overwrites the value of the first explicit VR little endian UL
// element t found in data.
func putUL(data []byte, t tag.Tag, value uint32) error {
	var key [4]byte
	binary.LittleEndian.PutUint16(key[0:2], t.Group)
	binary.LittleEndian.PutUint16(key[2:4], t.Element)
	pos := bytes.Index(data, key[:])
	if pos < 0 || pos+12 > len(data) {
		return fmt.Errorf("element %s not found", t)
	}
	binary.LittleEndian.PutUint32(data[pos+8:], value)
	return nil
}
