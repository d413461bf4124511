package policy

import "testing"

func TestDefaultAccess(t *testing.T) {
	tests := []struct {
		name string
		role string
		want AccessLevel
	}{
		{
			name: "admin — полный доступ",
			role: RoleAdmin,
			want: FullAccess(),
		},
		{
			name: "user — только просмотр",
			role: RoleUser,
			want: AccessLevel{View: true},
		},
		{
			name: "guest — нет доступа",
			role: RoleGuest,
			want: AccessLevel{},
		},
		{
			name: "неизвестная роль — нет доступа, не паника",
			role: "superuser",
			want: AccessLevel{},
		},
		{
			name: "пустая роль — нет доступа",
			role: "",
			want: AccessLevel{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultAccess(tt.role)
			if got != tt.want {
				t.Errorf("DefaultAccess(%q) = %+v, хотели %+v", tt.role, got, tt.want)
			}
		})
	}
}

func TestDeriveAction(t *testing.T) {
	tests := []struct {
		name string
		old  AccessLevel
		new  AccessLevel
		want string
	}{
		{
			name: "нет прав -> есть права — granted",
			old:  NoAccess(),
			new:  AccessLevel{View: true},
			want: ActionGranted,
		},
		{
			name: "есть права -> нет прав — revoked",
			old:  AccessLevel{View: true, Edit: true},
			new:  NoAccess(),
			want: ActionRevoked,
		},
		{
			name: "расширение прав — modified",
			old:  AccessLevel{View: true},
			new:  AccessLevel{View: true, Edit: true},
			want: ActionModified,
		},
		{
			name: "сужение без полного отзыва — modified",
			old:  AccessLevel{View: true, Edit: true},
			new:  AccessLevel{View: true},
			want: ActionModified,
		},
		{
			name: "нет прав -> нет прав — modified",
			old:  NoAccess(),
			new:  NoAccess(),
			want: ActionModified,
		},
		{
			name: "полный доступ без изменений — modified",
			old:  FullAccess(),
			new:  FullAccess(),
			want: ActionModified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveAction(tt.old, tt.new)
			if got != tt.want {
				t.Errorf("DeriveAction(%+v, %+v) = %q, хотели %q", tt.old, tt.new, got, tt.want)
			}
		})
	}
}

func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{name: "пустой набор", roles: nil, want: ""},
		{name: "один guest", roles: []string{RoleGuest}, want: RoleGuest},
		{name: "user + guest", roles: []string{RoleUser, RoleGuest}, want: RoleUser},
		{name: "guest + admin", roles: []string{RoleGuest, RoleAdmin}, want: RoleAdmin},
		{name: "все три", roles: []string{RoleGuest, RoleAdmin, RoleUser}, want: RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HighestRole(tt.roles)
			if got != tt.want {
				t.Errorf("HighestRole(%v) = %q, хотели %q", tt.roles, got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleUser, true},
		{RoleGuest, true},
		{"superadmin", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := IsValidRole(tt.role)
			if got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestAccessLevelIsNone(t *testing.T) {
	if !NoAccess().IsNone() {
		t.Error("NoAccess().IsNone() = false, хотели true")
	}
	if FullAccess().IsNone() {
		t.Error("FullAccess().IsNone() = true, хотели false")
	}
	if (AccessLevel{Delete: true}).IsNone() {
		t.Error("AccessLevel{Delete:true}.IsNone() = true, хотели false")
	}
}
