package model

import "time"

// Folder — папка (категория файлов) из таблицы folders.
// Папки образуют дерево через ParentID; удаление каскадно
// затрагивает вложенные папки и файлы.
type Folder struct {
	// ID — UUID папки
	ID string
	// Name — имя папки
	Name string
	// Description — описание
	Description string
	// OwnerID — UUID владельца
	OwnerID string
	// ParentID — UUID родительской папки (nil для корня)
	ParentID *string
	// FileCount — количество файлов в папке
	FileCount int
	// CreatedAt — время создания
	CreatedAt time.Time
}

// FolderNode — узел дерева папок, восстановленного из плоской выборки.
type FolderNode struct {
	Folder   *Folder
	Children []*FolderNode
}

// BuildFolderTree восстанавливает дерево из плоского списка папок.
// Папки с ParentID, отсутствующим в выборке, поднимаются в корень —
// область видимости могла отсечь родителя, но потомок остаётся доступным.
// Порядок детей повторяет порядок входного списка.
func BuildFolderTree(folders []*Folder) []*FolderNode {
	nodes := make(map[string]*FolderNode, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &FolderNode{Folder: f}
	}

	var roots []*FolderNode
	for _, f := range folders {
		node := nodes[f.ID]
		if f.ParentID != nil {
			if parent, ok := nodes[*f.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
