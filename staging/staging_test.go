package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jupark12/contract-extract/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

func pdf(name string, size int64) models.CandidateFile {
	return models.NewCandidateFile(name, size, DefaultAcceptedType, nil)
}

func names(files []models.CandidateFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func TestAddFilesAcceptsPDFs(t *testing.T) {
	area := New()

	accepted, rejection := area.AddFiles([]models.CandidateFile{pdf("a.pdf", 10), pdf("b.pdf", 20)})

	assert.Nil(t, rejection)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names(accepted))
	assert.Equal(t, 2, area.Len())
	assert.Equal(t, 3, area.Remaining())
}

func TestAddFilesRejectsWrongType(t *testing.T) {
	area := New()

	accepted, rejection := area.AddFiles([]models.CandidateFile{
		models.NewCandidateFile("notes.txt", 10, "text/plain", nil),
	})

	assert.Empty(t, accepted)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ValidationMimeType, rejection.Kind)
	assert.Equal(t, "Only PDF files are allowed", rejection.Error())
	assert.Equal(t, rejection, area.Error())
}

func TestOversizeFileRejectedThenTrimmedAccepted(t *testing.T) {
	area := New()

	accepted, rejection := area.AddFiles([]models.CandidateFile{pdf("contract.pdf", 60*mib)})
	assert.Empty(t, accepted)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ValidationSize, rejection.Kind)
	assert.Equal(t, "contract.pdf", rejection.FileName)
	assert.Contains(t, rejection.Error(), "contract.pdf")
	assert.Equal(t, "File contract.pdf exceeds 50MB limit", rejection.Error())

	accepted, rejection = area.AddFiles([]models.CandidateFile{pdf("contract.pdf", 40*mib)})
	assert.Nil(t, rejection)
	assert.Len(t, accepted, 1)
	assert.Nil(t, area.Error())
}

func TestSizeLimitIsInclusive(t *testing.T) {
	area := New()
	accepted, rejection := area.AddFiles([]models.CandidateFile{pdf("edge.pdf", DefaultMaxFileSize)})
	assert.Nil(t, rejection)
	assert.Len(t, accepted, 1)
}

func TestDuplicatesAreDroppedSilently(t *testing.T) {
	area := New()
	area.AddFiles([]models.CandidateFile{pdf("a.pdf", 10)})

	accepted, rejection := area.AddFiles([]models.CandidateFile{
		pdf("a.pdf", 10),
		pdf("a.pdf", 11),
		pdf("b.pdf", 10),
		pdf("b.pdf", 10),
	})

	assert.Nil(t, rejection)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names(accepted))
	assert.Equal(t, 3, area.Len())
}

func TestCapacityAcceptsOnlyWhatFits(t *testing.T) {
	area := New()
	area.AddFiles([]models.CandidateFile{pdf("1.pdf", 1), pdf("2.pdf", 2), pdf("3.pdf", 3)})

	accepted, rejection := area.AddFiles([]models.CandidateFile{
		pdf("4.pdf", 4), pdf("5.pdf", 5), pdf("6.pdf", 6), pdf("7.pdf", 7),
	})

	require.NotNil(t, rejection)
	assert.Equal(t, models.ValidationCapacity, rejection.Kind)
	assert.Equal(t, "You can upload a maximum of 5 files", rejection.Error())
	assert.Equal(t, []string{"4.pdf", "5.pdf"}, names(accepted))
	assert.Equal(t, []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"}, names(area.Files()))
	assert.Equal(t, 0, area.Remaining())

	accepted, rejection = area.AddFiles([]models.CandidateFile{pdf("8.pdf", 8)})
	assert.Empty(t, accepted)
	require.NotNil(t, rejection)
	assert.Equal(t, models.ValidationCapacity, rejection.Kind)
}

func TestLastRejectionWins(t *testing.T) {
	area := New()

	_, rejection := area.AddFiles([]models.CandidateFile{
		pdf("big.pdf", 60*mib),
		models.NewCandidateFile("image.png", 10, "image/png", nil),
	})
	require.NotNil(t, rejection)
	assert.Equal(t, models.ValidationMimeType, rejection.Kind)

	accepted, rejection := area.AddFiles([]models.CandidateFile{
		models.NewCandidateFile("image.png", 10, "image/png", nil),
		pdf("ok.pdf", 10),
		pdf("big.pdf", 60*mib),
	})
	require.NotNil(t, rejection)
	assert.Equal(t, models.ValidationSize, rejection.Kind)
	assert.Len(t, accepted, 1)
}

func TestStagedSetInvariantsHoldForAnySequence(t *testing.T) {
	area := New()

	for round := 0; round < 20; round++ {
		batch := make([]models.CandidateFile, 0, 4)
		for i := 0; i < 4; i++ {
			batch = append(batch, pdf(fmt.Sprintf("f%d.pdf", (round+i)%7), int64((round*i)%3)))
		}
		area.AddFiles(batch)
		if round%3 == 0 {
			area.RemoveFile(round % 5)
		}

		files := area.Files()
		require.LessOrEqual(t, len(files), DefaultMaxFiles)
		for i := range files {
			for j := i + 1; j < len(files); j++ {
				require.False(t, files[i].SameAs(files[j]), "duplicate %s staged", files[i].Name)
			}
		}
	}
}

func TestRemoveFileKeepsOrderAndClearsError(t *testing.T) {
	area := New()
	area.AddFiles([]models.CandidateFile{pdf("a.pdf", 1), pdf("b.pdf", 2), pdf("c.pdf", 3)})
	area.AddFiles([]models.CandidateFile{models.NewCandidateFile("x.doc", 1, "application/msword", nil)})
	require.NotNil(t, area.Error())

	area.RemoveFile(1)

	assert.Nil(t, area.Error())
	files := area.Files()
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, names(files))
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, int64(3), files[1].Size)
}

func TestRemoveFileOutOfRange(t *testing.T) {
	area := New()
	area.AddFiles([]models.CandidateFile{pdf("a.pdf", 1)})

	area.RemoveFile(5)
	area.RemoveFile(-1)

	assert.Equal(t, 1, area.Len())
}

func TestFilesReturnsCopy(t *testing.T) {
	area := New()
	area.AddFiles([]models.CandidateFile{pdf("a.pdf", 1)})

	files := area.Files()
	files[0] = pdf("mutated.pdf", 9)

	assert.Equal(t, "a.pdf", area.Files()[0].Name)
}

func TestClear(t *testing.T) {
	area := New()
	area.AddFiles([]models.CandidateFile{pdf("a.pdf", 1), models.NewCandidateFile("x", 1, "text/plain", nil)})

	area.Clear()

	assert.Equal(t, 0, area.Len())
	assert.Nil(t, area.Error())
}

func TestOptions(t *testing.T) {
	area := New(WithMaxFiles(2), WithMaxFileSize(100), WithAcceptedType("image/png"))

	accepted, rejection := area.AddFiles([]models.CandidateFile{
		models.NewCandidateFile("a.png", 50, "image/png", nil),
		models.NewCandidateFile("b.png", 150, "image/png", nil),
	})

	assert.Len(t, accepted, 1)
	require.NotNil(t, rejection)
	assert.Equal(t, "File b.png exceeds 100 bytes limit", rejection.Error())
}

func TestFromBytesDetectsPDF(t *testing.T) {
	file := FromBytes("doc.pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"))

	assert.Equal(t, "application/pdf", file.MimeType)
	assert.Equal(t, "doc.pdf", file.Name)

	rc, err := file.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, file.Size, int64(len(data)))
}

func TestFromBytesPlainText(t *testing.T) {
	file := FromBytes("fake.pdf", []byte("just some text"))
	assert.Equal(t, "text/plain", file.MimeType)
}

func TestFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contract.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7\n"), 0644))

	file, err := FromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "contract.pdf", file.Name)
	assert.Equal(t, int64(9), file.Size)
	assert.Equal(t, "application/pdf", file.MimeType)

	_, err = FromPath(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	_, err = FromPath(dir)
	assert.Error(t, err)
}
