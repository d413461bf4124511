package model

import "time"

// File — метаданные файла из таблицы files.
// Содержимое лежит в объектном хранилище под ключом ObjectKey;
// запись в БД — только реестр.
type File struct {
	// ID — UUID файла
	ID string
	// Name — исходное имя файла
	Name string
	// ObjectKey — ключ объекта в хранилище ("<ownerID>/<timestamp>-<name>")
	ObjectKey string
	// SizeBytes — размер файла в байтах
	SizeBytes int64
	// ContentType — MIME-тип
	ContentType string
	// OwnerID — UUID владельца
	OwnerID string
	// FolderID — UUID папки (nil — корень)
	FolderID *string
	// CreatedAt — время загрузки
	CreatedAt time.Time
}
