package liveness

import "github.com/coreos/go-systemd/v22/daemon"

// WakeHinter 向宿主示意"别把进程挂起"。缺乏该能力的平台用 NoopHinter。
type WakeHinter interface {
	Hint() error
}

// NoopHinter 空实现。
type NoopHinter struct{}

func (NoopHinter) Hint() error { return nil }

// SystemdHinter 通过 sd_notify 喂 systemd 看门狗。
// 非 systemd 托管时 SdNotify 自行退化为 no-op。
type SystemdHinter struct{}

func (SystemdHinter) Hint() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	return err
}
