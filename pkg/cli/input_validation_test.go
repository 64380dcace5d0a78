package cli

import (
	"strings"
	"testing"
)

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "plain command",
			input:   "leverage 20",
			wantErr: false,
		},
		{
			name:    "selection with side and price suffixes",
			input:   "trade BTCUSDC:short@49000.5 ETHUSDC",
			wantErr: false,
		},
		{
			name:    "decimal target",
			input:   "target 12.50",
			wantErr: false,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: false,
		},
		{
			name:    "shell metacharacters",
			input:   "connect; rm -rf /",
			wantErr: true,
		},
		{
			name:    "quotes",
			input:   `trade "BTCUSDC"`,
			wantErr: true,
		},
		{
			name:    "path traversal",
			input:   "../../../etc/passwd",
			wantErr: true,
		},
		{
			name:    "oversized line",
			input:   strings.Repeat("a", 300),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInput(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
