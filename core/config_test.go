package core

import "testing"

func TestNewConfig_authDefaults(t *testing.T) {
	tests := []struct {
		name              string
		env               map[string]string
		selfHeal          bool
		promoteFirstAdmin bool
	}{
		{name: "dev", env: map[string]string{"ENV": ""}, selfHeal: true, promoteFirstAdmin: true},
		{name: "test", env: map[string]string{"ENV": "test"}, selfHeal: true, promoteFirstAdmin: true},
		{name: "qa", env: map[string]string{"ENV": "qa"}},
		{name: "prod", env: map[string]string{"ENV": "PROD"}},
		{
			name:     "prod opt-in",
			env:      map[string]string{"ENV": "PROD", "PROD_AUTH_SELFHEAL": "true"},
			selfHeal: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			conf := NewConfig()
			if conf.Auth.SelfHeal != tt.selfHeal {
				t.Errorf("Auth.SelfHeal = %v, want %v", conf.Auth.SelfHeal, tt.selfHeal)
			}
			if conf.Auth.PromoteFirstAdmin != tt.promoteFirstAdmin {
				t.Errorf("Auth.PromoteFirstAdmin = %v, want %v", conf.Auth.PromoteFirstAdmin, tt.promoteFirstAdmin)
			}
		})
	}
}
