package scrape

// stealthScript runs before any page script on tabs opened with
// TabOptions.Stealth. It masks the usual headless-Chrome tells:
// navigator.webdriver, the empty plugin list, missing window.chrome,
// WebGL vendor strings and canvas fingerprints.
const stealthScript = `(() => {
    Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
    delete navigator.__proto__.webdriver;

    // A stock Chrome install reports five plugins.
    Object.defineProperty(navigator, 'plugins', {
        get: () => {
            const plugins = [
                { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
                { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
                { name: 'Chromium PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
                { name: 'Chromium PDF Viewer', filename: 'internal-pdf-viewer', description: '' },
                { name: 'Native Client', filename: 'internal-nacl-plugin', description: '' },
            ];
            plugins.refresh = () => {};
            plugins.item = (i) => plugins[i] || null;
            plugins.namedItem = (name) => plugins.find(p => p.name === name) || null;
            return plugins;
        }
    });

    Object.defineProperty(navigator, 'languages', { get: () => ['vi', 'en-US', 'en'] });
    Object.defineProperty(navigator, 'language', { get: () => 'vi' });

    window.chrome = {
        runtime: { onConnect: { addListener: () => {}, removeListener: () => {} },
                   onMessage: { addListener: () => {}, removeListener: () => {} },
                   sendMessage: () => {} },
        loadTimes: () => ({ requestTime: Date.now() / 1000, startLoadTime: Date.now() / 1000,
                            commitLoadTime: Date.now() / 1000, finishDocumentLoadTime: Date.now() / 1000,
                            finishLoadTime: Date.now() / 1000, firstPaintTime: Date.now() / 1000,
                            firstPaintAfterLoadTime: 0, navigationType: 'Other',
                            wasFetchedViaSpdy: true, wasNpnNegotiated: true,
                            npnNegotiatedProtocol: 'h2', wasAlternateProtocolAvailable: false,
                            connectionInfo: 'h2' }),
        csi: () => ({ pageT: Date.now(), startE: Date.now(), onloadT: Date.now(), tran: 15 }),
        app: { isInstalled: false, InstallState: { INSTALLED: 'installed', NOT_INSTALLED: 'not_installed', DISABLED: 'disabled' },
               getIsInstalled: () => false, getDetails: () => null, runningState: () => 'cannot_run' },
    };

    const origPermQuery = window.navigator.permissions.query;
    window.navigator.permissions.query = (params) =>
        params.name === 'notifications'
            ? Promise.resolve({ state: Notification.permission })
            : origPermQuery(params);

    // 37445/37446 are UNMASKED_VENDOR_WEBGL and UNMASKED_RENDERER_WEBGL.
    const getParameterProxyHandler = {
        apply: function(target, thisArg, args) {
            const param = args[0];
            if (param === 37445) return 'Intel Inc.';
            if (param === 37446) return 'Intel Iris OpenGL Engine';
            return target.apply(thisArg, args);
        }
    };
    const origGetParam = WebGLRenderingContext.prototype.getParameter;
    WebGLRenderingContext.prototype.getParameter = new Proxy(origGetParam, getParameterProxyHandler);
    if (typeof WebGL2RenderingContext !== 'undefined') {
        const origGetParam2 = WebGL2RenderingContext.prototype.getParameter;
        WebGL2RenderingContext.prototype.getParameter = new Proxy(origGetParam2, getParameterProxyHandler);
    }

    const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
    HTMLCanvasElement.prototype.toDataURL = function(type) {
        if (this.width > 16 && this.height > 16) {
            const ctx = this.getContext('2d');
            if (ctx) {
                const style = ctx.fillStyle;
                ctx.fillStyle = 'rgba(255,255,255,0.01)';
                ctx.fillRect(0, 0, 1, 1);
                ctx.fillStyle = style;
            }
        }
        return origToDataURL.apply(this, arguments);
    };

    Object.defineProperty(navigator, 'connection', {
        get: () => ({ effectiveType: '4g', rtt: 50, downlink: 10, saveData: false })
    });

    Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8 });
    Object.defineProperty(navigator, 'deviceMemory', { get: () => 8 });
    Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });

    if (typeof Notification !== 'undefined') {
        Object.defineProperty(Notification, 'permission', { get: () => 'default' });
    }
})();`
