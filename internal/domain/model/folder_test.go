package model

import "testing"

func strPtr(s string) *string { return &s }

func TestBuildFolderTree(t *testing.T) {
	tests := []struct {
		name      string
		folders   []*Folder
		wantRoots []string
		// wantChildren: id папки -> ожидаемые id детей по порядку
		wantChildren map[string][]string
	}{
		{
			name:      "пустой список",
			folders:   nil,
			wantRoots: nil,
		},
		{
			name: "плоский список без вложенности",
			folders: []*Folder{
				{ID: "a"}, {ID: "b"},
			},
			wantRoots: []string{"a", "b"},
		},
		{
			name: "двухуровневое дерево",
			folders: []*Folder{
				{ID: "root"},
				{ID: "child1", ParentID: strPtr("root")},
				{ID: "child2", ParentID: strPtr("root")},
				{ID: "grand", ParentID: strPtr("child1")},
			},
			wantRoots: []string{"root"},
			wantChildren: map[string][]string{
				"root":   {"child1", "child2"},
				"child1": {"grand"},
			},
		},
		{
			name: "потомок с отсечённым родителем поднимается в корень",
			folders: []*Folder{
				{ID: "visible", ParentID: strPtr("hidden")},
				{ID: "top"},
			},
			wantRoots: []string{"visible", "top"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := BuildFolderTree(tt.folders)

			if len(tree) != len(tt.wantRoots) {
				t.Fatalf("корней %d, хотели %d", len(tree), len(tt.wantRoots))
			}
			byID := make(map[string]*FolderNode)
			var walk func(nodes []*FolderNode)
			walk = func(nodes []*FolderNode) {
				for _, n := range nodes {
					byID[n.Folder.ID] = n
					walk(n.Children)
				}
			}
			walk(tree)

			for i, id := range tt.wantRoots {
				if tree[i].Folder.ID != id {
					t.Errorf("корень[%d] = %s, хотели %s", i, tree[i].Folder.ID, id)
				}
			}
			for parentID, childIDs := range tt.wantChildren {
				parent, ok := byID[parentID]
				if !ok {
					t.Fatalf("папка %s не найдена в дереве", parentID)
				}
				if len(parent.Children) != len(childIDs) {
					t.Fatalf("у %s детей %d, хотели %d", parentID, len(parent.Children), len(childIDs))
				}
				for i, id := range childIDs {
					if parent.Children[i].Folder.ID != id {
						t.Errorf("ребёнок %s[%d] = %s, хотели %s", parentID, i, parent.Children[i].Folder.ID, id)
					}
				}
			}
		})
	}
}
