// Package checksum valida dígitos verificadores de CPF y CNPJ (módulo 11).
// Funciones puras, sin I/O. Las usa el módulo de registro antes de persistir.
package checksum

import "strings"

type Kind string

const (
	KindCPF  Kind = "cpf"  // 11 dígitos
	KindCNPJ Kind = "cnpj" // 14 dígitos
)

type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate limpia el valor (solo dígitos) y verifica largo, dígitos repetidos
// y los dos dígitos verificadores según el tipo.
func Validate(raw string, kind Kind) Result {
	digits := stripNonDigits(raw)

	switch kind {
	case KindCPF:
		return validateCPF(digits)
	case KindCNPJ:
		return validateCNPJ(digits)
	default:
		return Result{Valid: false, Reason: "tipo de documento desconocido"}
	}
}

func stripNonDigits(s string) []int {
	var out []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, int(r-'0'))
		}
	}
	return out
}

func allSame(digits []int) bool {
	for _, d := range digits {
		if d != digits[0] {
			return false
		}
	}
	return true
}

func validateCPF(d []int) Result {
	if len(d) != 11 {
		return Result{Valid: false, Reason: "CPF debe tener 11 dígitos"}
	}
	if allSame(d) {
		return Result{Valid: false, Reason: "CPF con dígitos repetidos"}
	}

	// Primer verificador: pesos 10..2 sobre los primeros 9 dígitos.
	if cpfCheckDigit(d[:9]) != d[9] {
		return Result{Valid: false, Reason: "dígito verificador inválido"}
	}
	// Segundo: pesos 11..2 sobre los primeros 10.
	if cpfCheckDigit(d[:10]) != d[10] {
		return Result{Valid: false, Reason: "dígito verificador inválido"}
	}
	return Result{Valid: true}
}

func cpfCheckDigit(d []int) int {
	sum := 0
	n := len(d)
	for i, v := range d {
		sum += v * (n + 1 - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		rem = 0
	}
	return rem
}

func validateCNPJ(d []int) Result {
	if len(d) != 14 {
		return Result{Valid: false, Reason: "CNPJ debe tener 14 dígitos"}
	}
	if allSame(d) {
		return Result{Valid: false, Reason: "CNPJ con dígitos repetidos"}
	}

	if cnpjCheckDigit(d[:12]) != d[12] {
		return Result{Valid: false, Reason: "dígito verificador inválido"}
	}
	if cnpjCheckDigit(d[:13]) != d[13] {
		return Result{Valid: false, Reason: "dígito verificador inválido"}
	}
	return Result{Valid: true}
}

// cnpjCheckDigit usa pesos que arrancan en len-7 y ciclan 2..9.
func cnpjCheckDigit(d []int) int {
	sum := 0
	pos := len(d) - 7
	for _, v := range d {
		sum += v * pos
		pos--
		if pos < 2 {
			pos = 9
		}
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

// FormatKind normaliza el tipo que llega por la API ("CPF", "cnpj", etc).
func FormatKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpf":
		return KindCPF, true
	case "cnpj":
		return KindCNPJ, true
	}
	return "", false
}
