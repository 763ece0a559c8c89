// File identity and download types shared across pipeline stages.
package contracts

import "time"

// FileFormat identifies the on-disk format of an ingested document.
type FileFormat string

// Recognized file formats.
const (
	FormatXML     FileFormat = "XML"
	FormatDOCX    FileFormat = "DOCX"
	FormatPDF     FileFormat = "PDF"
	FormatZIP     FileFormat = "ZIP"
	FormatUnknown FileFormat = "UNKNOWN"
)

// FileMetadata is the immutable identity of a stored document. Created by
// ingestion, read by extraction. Checksum is lowercase hex SHA-256 over the
// full file bytes and is unique across the store.
type FileMetadata struct {
	FileID            string     `json:"file_id"`
	FileName          string     `json:"file_name"`
	FilePath          string     `json:"file_path"` // opaque storage token
	SourceURL         string     `json:"source_url"`
	DownloadTimestamp time.Time  `json:"download_timestamp"`
	Checksum          string     `json:"checksum"`
	FileSizeBytes     int64      `json:"file_size_bytes"`
	Format            FileFormat `json:"format"`
}

// DownloadableFile is a download candidate discovered on a source site.
type DownloadableFile struct {
	URL      string     `json:"url"`
	FileName string     `json:"file_name"`
	Format   FileFormat `json:"format"`
}

// DownloadedFile carries the bytes of a fetched candidate.
type DownloadedFile struct {
	Bytes    []byte     `json:"-"`
	FileName string     `json:"file_name"`
	Size     int64      `json:"size"`
	Format   FileFormat `json:"format"`
}
