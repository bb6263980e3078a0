package model

import (
	"bytes"
	"encoding/gob"
	"io"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// Encode はvをgob形式でwに書き出す
//
// 使用例:
//
//	var buf bytes.Buffer
//	err := model.Encode(&buf, transformer)
func Encode(w io.Writer, v interface{}) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return esErrors.Wrap(err, "failed to encode model")
	}
	return nil
}

// Decode はrからgob形式の値をvに読み込む。vはポインタでなければならない
func Decode(r io.Reader, v interface{}) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return esErrors.Wrap(err, "failed to decode model")
	}
	return nil
}

// Clone はgobを経由してsrcのディープコピーをdstに作る。
// 学習済みモデルを共有せずに複製したい場合に使う
func Clone(src, dst interface{}) error {
	var buf bytes.Buffer
	if err := Encode(&buf, src); err != nil {
		return err
	}
	return Decode(&buf, dst)
}
